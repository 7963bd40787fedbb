package utils

import (
	"context"
	"fmt"

	"reachly/config"
	"reachly/engine"

	"gopkg.in/gomail.v2"
)

// Mailer is the SMTP implementation of the engine's send transport.
type Mailer struct {
	dialer    *gomail.Dialer
	fromEmail string
	fromName  string
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

// Send delivers one approved draft. Called only after the draft's terminal
// status is committed; errors are recorded by the caller, never retried here.
func (m *Mailer) Send(_ context.Context, email engine.OutboundEmail) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromEmail, m.fromName)
	msg.SetAddressHeader("To", email.To, email.ToName)
	msg.SetHeader("Subject", email.Subject)
	if email.MessageID != "" {
		msg.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", email.MessageID, "reachly"))
	}
	msg.SetBody("text/html", email.BodyHTML)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}
