package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DBFile      string `envconfig:"DMCHAT_DB" default:"dmchat.db"`
	AdminAddr   string `envconfig:"ADMIN_ADDR" default:"localhost:5001"`
	APIAddr     string `envconfig:"API_ADDR" default:":5000"`
	FrontendURL string `envconfig:"FRONTEND_URL"`

	// JWTSecret is the raw signing secret, not base64.
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	TokenExpiry       time.Duration `envconfig:"TOKEN_EXPIRY" default:"1h"`
	OTPExpiry         time.Duration `envconfig:"OTP_EXPIRY" default:"1h"`
	OTPResendInterval time.Duration `envconfig:"OTP_RESEND_INTERVAL" default:"30s"`

	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASS"`
	SMTPFrom string `envconfig:"SMTP_FROM"`

	EchoToSender bool `envconfig:"ECHO_TO_SENDER" default:"true"`
	SendBuffer   int  `envconfig:"SEND_BUFFER" default:"64"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads the environment, after merging a .env file from the working
// directory if one exists. cliMode skips checks only the server needs.
func Load(cliMode bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.JWTSecret == "" && !cliMode {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.OTPExpiry <= 0 {
		return fmt.Errorf("OTP_EXPIRY must be greater than 0")
	}

	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be greater than 0")
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
