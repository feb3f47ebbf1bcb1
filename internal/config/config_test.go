package config

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir()) // no stray .env
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load(false)
	req.NoError(err)
	req.Equal("dmchat.db", cfg.DBFile)
	req.Equal(":5000", cfg.APIAddr)
	req.Equal("localhost:5001", cfg.AdminAddr)
	req.Equal(time.Hour, cfg.TokenExpiry)
	req.Equal(time.Hour, cfg.OTPExpiry)
	req.Equal(30*time.Second, cfg.OTPResendInterval)
	req.Equal(587, cfg.SMTPPort)
	req.True(cfg.EchoToSender)
	req.Equal(64, cfg.SendBuffer)
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ECHO_TO_SENDER", "false")
	t.Setenv("TOKEN_EXPIRY", "15m")
	t.Setenv("SEND_BUFFER", "8")

	cfg, err := Load(false)
	req.NoError(err)
	req.False(cfg.EchoToSender)
	req.Equal(15*time.Minute, cfg.TokenExpiry)
	req.Equal(8, cfg.SendBuffer)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "")

	_, err := Load(false)
	require.Error(t, err)

	_, err = Load(true)
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			JWTSecret:   "s",
			TokenExpiry: time.Hour,
			OTPExpiry:   time.Hour,
			SendBuffer:  1,
			LogLevel:    "info",
			LogFormat:   "text",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero token expiry", func(c *Config) { c.TokenExpiry = 0 }},
		{"zero otp expiry", func(c *Config) { c.OTPExpiry = 0 }},
		{"zero send buffer", func(c *Config) { c.SendBuffer = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	c := valid()
	require.NoError(t, c.Validate(false))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			require.Error(t, c.Validate(false))
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.Logger(&buf)

	require.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	logger.Warn("careful", "user_id", "u1")
	require.Contains(t, buf.String(), `"user_id":"u1"`)
}
