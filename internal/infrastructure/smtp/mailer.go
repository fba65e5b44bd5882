package smtp

import (
	"context"
	"fmt"

	"github.com/anime-auth-api/internal/config"
	"github.com/anime-auth-api/internal/domain"
	"gopkg.in/gomail.v2"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer renders and delivers transactional emails over SMTP.
type Mailer struct {
	dialer    dialer
	from      string
	templates *Templates
}

// NewMailer builds a mailer for cfg. Authentication is skipped when
// SMTPUsername is empty.
func NewMailer(cfg *config.Config, templates *Templates) *Mailer {
	return &Mailer{
		dialer:    gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:      cfg.SMTPFrom,
		templates: templates,
	}
}

func (m *Mailer) Send(ctx context.Context, to string, kind domain.EmailKind, data domain.EmailData) error {
	subject, body, err := m.templates.Render(kind, data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	// gomail has no context support; give up waiting once ctx is done.
	errc := make(chan error, 1)
	go func() { errc <- m.dialer.DialAndSend(msg) }()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
