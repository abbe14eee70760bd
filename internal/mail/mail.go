// Package mail delivers the post-session report over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/internal/report"
)

// Config holds SMTP delivery settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Sender is the From address.
	Sender string `yaml:"sender"`

	// Recipient receives session reports.
	Recipient string `yaml:"recipient"`
}

// Enabled reports whether the config is complete enough to send mail.
func (c Config) Enabled() bool {
	return c.Host != "" && c.Sender != "" && c.Recipient != ""
}

// Sender delivers a rendered report.
type Sender interface {
	SendReport(ctx context.Context, subject, body string, attachment *report.Document) error
}

// SMTPSender sends reports through an SMTP relay via gomail.
type SMTPSender struct {
	config Config
	dialer *gomail.Dialer
	logger *observability.Logger
}

// NewSMTPSender creates a sender from the config.
func NewSMTPSender(config Config, logger *observability.Logger) (*SMTPSender, error) {
	if !config.Enabled() {
		return nil, errors.New("mail: host, sender and recipient are required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &SMTPSender{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		logger: logger,
	}, nil
}

// SendReport emails the body with the report attached.
func (s *SMTPSender) SendReport(ctx context.Context, subject, body string, attachment *report.Document) error {
	if strings.TrimSpace(subject) == "" {
		subject = "Session Report"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.Sender)
	m.SetHeader("To", s.config.Recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if attachment != nil {
		m.Attach(attachment.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(attachment.Body)
			return err
		}))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error(ctx, "report mail failed", "recipient", s.config.Recipient, "error", err)
		return fmt.Errorf("send report mail: %w", err)
	}
	s.logger.Info(ctx, "report mail sent", "recipient", s.config.Recipient)
	return nil
}
