package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmchat/internal/api"
	"dmchat/internal/auth"
	"dmchat/internal/commands"
	"dmchat/internal/config"
	"dmchat/internal/delivery"
	"dmchat/internal/http"
	"dmchat/internal/mail"
	"dmchat/internal/messages"
	"dmchat/internal/metrics"
	"dmchat/internal/presence"
	"dmchat/internal/storage"
	"dmchat/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type otpMailer interface {
	SendOTP(ctx context.Context, email, otp string) error
}

// newMailer picks SMTP when a relay is configured. Tests replace it.
var newMailer = func(cfg *config.Config) otpMailer {
	if cfg.SMTPHost == "" {
		return mail.LogMailer{}
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	})
}

func run(ctx context.Context, cfg *config.Config) error {
	authConfig := auth.Config{
		Secret:         base64.StdEncoding.EncodeToString([]byte(cfg.JWTSecret)),
		TokenExpiry:    cfg.TokenExpiry,
		OTPExpiry:      cfg.OTPExpiry,
		ResendInterval: cfg.OTPResendInterval,
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	authService, err := auth.NewAuthService(ctx, authConfig, bbStorage, newMailer(cfg))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	registry := presence.NewRegistry()
	coordinator := delivery.New(registry, m, delivery.Config{EchoToSender: cfg.EchoToSender})
	messageService := messages.NewService(bbStorage, coordinator)
	hub := ws.NewHub(registry, m, cfg.SendBuffer)

	wsServer := ws.NewServer(authService, hub, messageService, cfg.FrontendURL)
	apiHandlers := api.New(authService, bbStorage, messageService)

	adminServer := http.NewAdminServer(api.NewAdminHandler(hub), reg, cfg.AdminAddr)
	apiServer := http.NewAPIServer(apiHandlers, wsServer, cfg.FrontendURL, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin server shutdown error", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("api server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API, WebSocket and admin servers",
		RunE:  serve,
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(false)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.Logger(os.Stderr))

	return run(cmd.Context(), cfg)
}

func onlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "Print who is connected to the running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(true)
			if err != nil {
				return err
			}
			return commands.Online(cfg, cmd.OutOrStdout())
		},
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:           "dmchat",
		Short:         "Direct messaging server with live presence",
		RunE:          serve,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), onlineCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
