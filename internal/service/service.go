package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/exchange"
	"bjbyte/backend/internal/logger"
	"bjbyte/backend/internal/mailer"
	"bjbyte/backend/internal/reporting"
	"bjbyte/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Documents renders the PDFs the service hands out or mails.
type Documents interface {
	SalePDF(ctx context.Context, sale domain.Sale) ([]byte, error)
	SalesReportPDF(ctx context.Context, report reporting.Report) ([]byte, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, html string, attachments ...mailer.Attachment) error
	SendEach(ctx context.Context, recipients []string, subject, html string) error
	SendBulk(ctx context.Context, recipients []string, subject, html string) error
}

type Rates interface {
	ConvertFromCOP(amount domain.Money, currency string) domain.Money
	Status() exchange.Status
}

type Service struct {
	repo     store.Repository
	validate *validator.Validate
	now      func() time.Time
	log      *logger.Logger

	docs   Documents
	mail   Mailer
	rates  Rates
	issuer string
}

type Option func(*Service)

// WithClock replaces the time source used to stamp sales.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithDocuments(docs Documents) Option {
	return func(s *Service) { s.docs = docs }
}

func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mail = m }
}

func WithRates(r Rates) Option {
	return func(s *Service) { s.rates = r }
}

// WithLogger replaces the base logger. The request id in ctx is added to every entry.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l.WithComponent("service") }
}

// WithIssuer sets the company name used in email subjects.
func WithIssuer(name string) Option {
	return func(s *Service) { s.issuer = name }
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		validate: newValidator(),
		now:      time.Now,
		log:      logger.Default().WithComponent("service"),
		issuer:   "BJ-BYTE",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// check validates req and reports every failed field under details.fields.
func (s *Service) check(req any, build func(string) *apperror.AppError) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.NewInternal(err)
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe)] = validationMessage(fe)
	}
	return build("request validation failed").WithDetail("fields", fields).WithCause(store.ErrInvalidInput)
}

// fieldPath drops the root struct name: "RegisterSaleRequest.lines[0].quantity" becomes
// "lines[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "invalid email format"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must have at least " + fe.Param() + " items"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "invalid value"
	}
}

// storeError translates repository sentinels into application errors.
func storeError(err error, entity string, id any) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperror.NewNotFound(entity, id).WithCause(err)
	case errors.Is(err, store.ErrInvalidInput):
		return apperror.NewInvalidInput("invalid " + entity).WithCause(err)
	case errors.Is(err, store.ErrDuplicate):
		return apperror.NewConflict(entity + " already exists").WithCause(err)
	case errors.Is(err, store.ErrInsufficientStock):
		return apperror.NewBusinessRule(apperror.CodeInsufficientStock, "insufficient stock").WithCause(err)
	case errors.Is(err, store.ErrProductDisabled):
		return apperror.NewBusinessRule(apperror.CodeProductDisabled, "product is disabled").WithCause(err)
	default:
		return apperror.NewInternal(err)
	}
}

func (s *Service) logFor(ctx context.Context) *logger.Logger {
	if id := logger.RequestID(ctx); id != "" {
		return s.log.With("request_id", id)
	}
	return s.log
}
