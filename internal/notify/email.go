package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string
	To            []string
	TLSSkipVerify bool
}

func (c SMTPConfig) Enabled() bool {
	return len(c.Host) > 0 && len(c.To) > 0 && len(c.From) > 0
}

type emailSender struct {
	mailer *gomail.Dialer
	from   string
	to     []string
}

func newEmailSender(cfg SMTPConfig) *emailSender {
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	d := gomail.NewDialer(cfg.Host, port, cfg.User, cfg.Pass)
	if cfg.TLSSkipVerify {
		d.TLSConfig = &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: true,
		}
	}

	return &emailSender{
		mailer: d,
		from:   cfg.From,
		to:     cfg.To,
	}
}

func (s *emailSender) Name() string {
	return "email"
}

func (s *emailSender) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.mailer.DialAndSend(s.message(n)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *emailSender) message(n Notification) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, "")
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/plain", n.Text, gomail.SetPartEncoding(gomail.Unencoded))
	return m
}
