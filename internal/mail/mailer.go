package mail

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/SAOSTAR1501/sso-backend/internal/config"

	"gopkg.in/gomail.v2"
)

// Mailer delivers transactional email. Implementations must be safe for
// concurrent use; callers treat delivery as fire-and-forget.
type Mailer interface {
	SendPasswordResetOTP(ctx context.Context, to, code string, ttl time.Duration) error
	SendWelcome(ctx context.Context, to, fullName string) error
}

// New returns an SMTP mailer, or a log-only mailer when mail delivery is
// disabled in the configuration.
func New(cfg *config.Config) Mailer {
	if !cfg.MailEnabled {
		log.Println("[Mail] delivery disabled, emails will be logged only")
		return &logMailer{}
	}
	return &smtpMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.MailFrom,
	}
}

type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

func (m *smtpMailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

func (m *smtpMailer) SendPasswordResetOTP(
	ctx context.Context,
	to, code string,
	ttl time.Duration,
) error {
	body := fmt.Sprintf(
		`<p>Your password reset code is:</p>
<h2>%s</h2>
<p>The code expires in %d minutes. If you did not request a password reset, you can ignore this email.</p>`,
		code, int(ttl.Minutes()),
	)
	return m.send(to, "Your password reset code", body)
}

func (m *smtpMailer) SendWelcome(ctx context.Context, to, fullName string) error {
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
<p>Your account has been created. You can now sign in to any connected application with this email address.</p>`,
		fullName,
	)
	return m.send(to, "Welcome", body)
}

// logMailer is used when SMTP is not configured. The OTP itself is never
// logged.
type logMailer struct{}

func (l *logMailer) SendPasswordResetOTP(
	ctx context.Context,
	to, code string,
	ttl time.Duration,
) error {
	log.Printf("[Mail] password reset OTP for %s suppressed (mail disabled)", to)
	return nil
}

func (l *logMailer) SendWelcome(ctx context.Context, to, fullName string) error {
	log.Printf("[Mail] welcome mail for %s suppressed (mail disabled)", to)
	return nil
}
