package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/logger"
	"bjbyte/backend/internal/store"
)

const tokenIssuer = "bjbyte"

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager signs and verifies employee access tokens. Employees are read from the store on
// every login so accounts created by another process are picked up.
type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	employees EmployeeStore
	now       func() time.Time
}

type EmployeeStore interface {
	GetEmployeeByEmail(ctx context.Context, email string) (*domain.Employee, error)
	CreateEmployee(ctx context.Context, employee domain.Employee) error
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	UpdateEmployeePassword(ctx context.Context, email string, passwordHash string) error
}

type employeeClaims struct {
	jwtlib.RegisteredClaims
	Name string `json:"name"`
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, employees EmployeeStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		employees: employees,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, apperror.NewUnauthorized(errInvalidCredentials.Error())
	}

	employee, err := a.employees.GetEmployeeByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, apperror.NewUnauthorized(errInvalidCredentials.Error())
	}
	if err != nil {
		return domain.LoginResponse{}, apperror.NewInternal(err)
	}

	if !a.checkPassword(ctx, employee, req.Password) {
		return domain.LoginResponse{}, apperror.NewUnauthorized(errInvalidCredentials.Error())
	}
	if !employee.Active {
		return domain.LoginResponse{}, apperror.NewUnauthorized("account is inactive")
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(*employee, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, apperror.NewInternal(err)
	}

	logger.Info(ctx, "employee logged in", "employee_id", employee.ID, "role", employee.Role)
	return domain.LoginResponse{
		AccessToken: token,
		Role:        employee.Role,
		Name:        employee.Name,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// checkPassword verifies input against the stored hash. A legacy plain-text password that
// matches is replaced with its bcrypt hash.
func (a *AuthManager) checkPassword(ctx context.Context, employee *domain.Employee, input string) bool {
	stored := employee.PasswordHash
	if isPasswordHash(stored) {
		return verifyPassword(stored, input)
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(input)) != 1 {
		return false
	}
	if hashed, err := hashPassword(input); err == nil {
		if err := a.employees.UpdateEmployeePassword(ctx, employee.Email, hashed); err != nil {
			logger.Warn(ctx, "password upgrade failed", "employee_id", employee.ID, "error", err)
		}
	}
	return true
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &employeeClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{EmployeeID: sub, Name: claims.Name, Role: claims.Role}, nil
}

func (a *AuthManager) sign(employee domain.Employee, expiresAt time.Time) (string, error) {
	claims := employeeClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   employee.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Name: employee.Name,
		Role: employee.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleSeller
	}

	switch {
	case name == "":
		return domain.Employee{}, apperror.NewValidation("name is required")
	case !validEmail(email):
		return domain.Employee{}, apperror.NewValidation("invalid email format")
	case len(req.Password) < 8:
		return domain.Employee{}, apperror.NewValidation("password must be at least 8 characters")
	case role != domain.RoleAdmin && role != domain.RoleSeller:
		return domain.Employee{}, apperror.NewValidation("role must be admin or seller")
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.Employee{}, apperror.NewInternal(err)
	}

	err = a.employees.CreateEmployee(ctx, domain.Employee{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Active:       true,
		CreatedAt:    a.now(),
	})
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return domain.Employee{}, apperror.NewConflict("email already registered").WithCause(err)
	case errors.Is(err, store.ErrInvalidInput):
		return domain.Employee{}, apperror.NewInvalidInput("invalid employee").WithCause(err)
	case err != nil:
		return domain.Employee{}, apperror.NewInternal(err)
	}

	created, err := a.employees.GetEmployeeByEmail(ctx, email)
	if err != nil {
		return domain.Employee{}, apperror.NewInternal(err)
	}
	logger.Info(ctx, "employee created", "employee_id", created.ID, "role", created.Role)
	return *created, nil
}

func (a *AuthManager) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	employees, err := a.employees.ListEmployees(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return employees, nil
}

func validEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	return err == nil && addr.Address == value
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
