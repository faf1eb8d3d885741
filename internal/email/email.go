package email

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"railgate.app/api/internal/config"
	"railgate.app/api/internal/logger"
)

var ErrNotConfigured = errors.New("SMTP configuration missing")

type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	from string
	send func(m *gomail.Message) error
}

func NewSMTPMailer(host string, port int, user, pass, from string) (*SMTPMailer, error) {
	if host == "" || port == 0 || user == "" || pass == "" {
		logger.Error("SMTP configuration missing", map[string]interface{}{
			"host": host,
			"port": port,
		})
		return nil, ErrNotConfigured
	}
	if from == "" {
		from = user
	}

	d := gomail.NewDialer(host, port, user, pass)
	return &SMTPMailer{
		from: from,
		send: func(m *gomail.Message) error { return d.DialAndSend(m) },
	}, nil
}

func (s *SMTPMailer) Send(to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("missing recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// disabledMailer is used when SMTP is not configured. Every send fails with
// ErrNotConfigured so callers log it like any other delivery failure.
type disabledMailer struct{}

func (disabledMailer) Send(to, subject, body string) error {
	return ErrNotConfigured
}

var Disabled Mailer = disabledMailer{}

// FromConfig returns an SMTP mailer, or a mailer that always reports
// ErrNotConfigured when no SMTP host is set.
func FromConfig(cfg *config.Config) (Mailer, error) {
	if !cfg.EmailEnabled() {
		logger.Warn("SMTP not configured, outgoing mail disabled")
		return Disabled, nil
	}
	return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
}

func MagicLink(dashboardURL string, ttl time.Duration) (subject, body string) {
	subject = "Your Railgate access link"
	body = fmt.Sprintf(`Hello,

Thanks for subscribing. Use the link below to open your dashboard:

%s

The link expires in %s. If it stops working, request a new one from the site.

Railgate`, dashboardURL, humanDuration(ttl))
	return subject, body
}

// Notification formats an owner alert for a new form submission. Empty
// values are skipped.
func Notification(kind string, fields [][2]string) (subject, body string) {
	subject = fmt.Sprintf("New %s submission", kind)

	var b strings.Builder
	fmt.Fprintf(&b, "A new %s submission arrived.\n\n", kind)
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f[0], f[1])
	}
	return subject, b.String()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	case d >= time.Hour && d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return d.String()
	}
}
