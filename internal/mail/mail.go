// Package mail delivers one-time passwords to users.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
)

const otpSubject = "Your OTP Verification Code"

var otpTemplate = template.Must(template.New("otp").Parse(
	`<p>Your One-Time Password (OTP) for dmchat is: <strong>{{.}}</strong></p>
<p>This code is valid for 1 hour.</p>`))

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends OTP mails through an SMTP relay, authenticating when a
// username is set and upgrading to TLS when the relay offers it.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(ctx context.Context, msg *gomail.Msg) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	m := &SMTPMailer{cfg: cfg}
	m.send = m.dialAndSend
	return m
}

func (m *SMTPMailer) SendOTP(ctx context.Context, email, otp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := newOTPMessage(m.cfg.From, email, otp)
	if err != nil {
		return err
	}

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", email, err)
	}

	slog.Info("otp sent", "email", email)
	return nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}

	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// LogMailer writes codes to the log instead of mailing them. It is used when
// no SMTP relay is configured.
type LogMailer struct{}

func (LogMailer) SendOTP(_ context.Context, email, otp string) error {
	slog.Warn("smtp not configured, otp logged instead of mailed", "email", email, "otp", otp)
	return nil
}

func newOTPMessage(from, to, otp string) (*gomail.Msg, error) {
	var body bytes.Buffer
	if err := otpTemplate.Execute(&body, otp); err != nil {
		return nil, fmt.Errorf("render otp mail: %w", err)
	}

	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("otp mail sender %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("otp mail recipient %q: %w", to, err)
	}
	msg.Subject(otpSubject)
	msg.SetDate()
	msg.SetBodyString(gomail.TypeTextHTML, body.String())
	return msg, nil
}
