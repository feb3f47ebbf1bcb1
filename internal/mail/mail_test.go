package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
)

func TestSMTPMailer_SendOTP(t *testing.T) {
	req := require.New(t)

	var got *gomail.Msg
	m := NewSMTPMailer(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "noreply@example.com",
		Password: "secret",
	})
	m.send = func(_ context.Context, msg *gomail.Msg) error {
		got = msg
		return nil
	}

	req.NoError(m.SendOTP(context.Background(), "alice@example.com", "042517"))
	req.NotNil(got)

	from, err := got.GetSender(false)
	req.NoError(err)
	req.Equal("noreply@example.com", from)

	rcpts, err := got.GetRecipients()
	req.NoError(err)
	req.Equal([]string{"alice@example.com"}, rcpts)
	req.Equal([]string{otpSubject}, got.GetGenHeader(gomail.HeaderSubject))

	var raw bytes.Buffer
	_, err = got.WriteTo(&raw)
	req.NoError(err)
	req.Contains(raw.String(), "042517")
}

func TestSMTPMailer_SendError(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "noreply@example.com"})
	m.send = func(context.Context, *gomail.Msg) error {
		return errors.New("connection refused")
	}

	require.Error(t, m.SendOTP(context.Background(), "alice@example.com", "000000"))
}

func TestSMTPMailer_InvalidRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "noreply@example.com"})
	m.send = func(context.Context, *gomail.Msg) error {
		t.Fatal("send called with an invalid recipient")
		return nil
	}

	require.Error(t, m.SendOTP(context.Background(), "not an address", "000000"))
}

func TestSMTPMailer_CanceledContext(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "noreply@example.com"})
	m.send = func(context.Context, *gomail.Msg) error {
		t.Fatal("send called with canceled context")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.SendOTP(ctx, "alice@example.com", "000000"), context.Canceled)
}

func TestLogMailer(t *testing.T) {
	require.NoError(t, LogMailer{}.SendOTP(context.Background(), "alice@example.com", "123456"))
}
