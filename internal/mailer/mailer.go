// Package mailer sends HTML email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"bjbyte/backend/internal/logger"
)

var ErrNotConfigured = errors.New("mail is not configured")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Transport delivers built messages. *mail.Client satisfies it.
type Transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Mailer struct {
	from      string
	transport Transport
	log       *logger.Logger
}

func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, ErrNotConfigured
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return NewWithTransport(cfg.From, client), nil
}

func NewWithTransport(from string, transport Transport) *Mailer {
	return &Mailer{
		from:      from,
		transport: transport,
		log:       logger.Default().WithComponent("mailer"),
	}
}

// Send mails one recipient. A blank recipient is logged and skipped.
func (m *Mailer) Send(ctx context.Context, to, subject, html string, attachments ...Attachment) error {
	to = strings.TrimSpace(to)
	if to == "" {
		m.log.Errorw("email without recipient", "subject", subject)
		return nil
	}
	msg, err := m.build(subject, html, attachments)
	if err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("recipient %q: %w", to, err)
	}
	if err := m.transport.DialAndSendWithContext(ctx, msg); err != nil {
		m.log.Errorw("email failed", "to", to, "error", err)
		return fmt.Errorf("send to %s: %w", to, err)
	}
	m.log.Infow("email sent", "to", to)
	return nil
}

// SendEach mails every recipient separately. Failures do not stop the loop.
func (m *Mailer) SendEach(ctx context.Context, recipients []string, subject, html string) error {
	if len(recipients) == 0 {
		m.log.Warnw("empty recipient list", "subject", subject)
		return nil
	}
	var errs []error
	for _, to := range recipients {
		if err := m.Send(ctx, to, subject, html); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendBulk mails one message with every recipient in BCC.
func (m *Mailer) SendBulk(ctx context.Context, recipients []string, subject, html string) error {
	if len(recipients) == 0 {
		m.log.Warnw("empty recipient list", "subject", subject)
		return nil
	}
	msg, err := m.build(subject, html, nil)
	if err != nil {
		return err
	}
	if err := msg.Bcc(recipients...); err != nil {
		return fmt.Errorf("bcc: %w", err)
	}
	if err := m.transport.DialAndSendWithContext(ctx, msg); err != nil {
		m.log.Errorw("bulk email failed", "recipients", len(recipients), "error", err)
		return fmt.Errorf("bulk send: %w", err)
	}
	m.log.Infow("bulk email sent", "recipients", len(recipients))
	return nil
}

func (m *Mailer) build(subject, html string, attachments []Attachment) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("sender %q: %w", m.from, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	for _, a := range attachments {
		var opts []mail.FileOption
		if a.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(a.ContentType)))
		}
		if err := msg.AttachReader(a.Name, bytes.NewReader(a.Data), opts...); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return msg, nil
}
