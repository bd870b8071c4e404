package delivery

import (
	"context"
	"errors"
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// SMTPConfig holds the connection settings for an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the sender address placed on outgoing mail. Falls back to
	// Username when empty.
	From string
}

// SMTPEmailSender delivers verification codes over SMTP.
type SMTPEmailSender struct {
	config SMTPConfig
	dialer *gomail.Dialer
}

// NewSMTPEmailSender validates the config and returns a sender. The
// connection is dialed per send; SMTP relays close idle connections
// aggressively enough that pooling is not worth it here.
func NewSMTPEmailSender(cfg SMTPConfig) (*SMTPEmailSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.New("smtp port invalid")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address required")
	}

	return &SMTPEmailSender{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

// Send delivers a plain-text message. gomail has no context support, so
// cancellation is only honored between the context check and the dial.
func (s *SMTPEmailSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
