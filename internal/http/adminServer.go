package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"dmchat/internal/api"
	"dmchat/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAdminServer serves operator endpoints. It is meant to listen on a
// loopback address only.
func NewAdminServer(adminHandler *api.AdminHandler, gatherer prometheus.Gatherer, addr string) *AdminServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/online", adminHandler.OnlineHandler)
	mux.Handle("GET /metrics", metrics.Handler(gatherer))

	if addr == "" {
		addr = "localhost:5001"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *AdminServer) Start() error {
	slog.Info("admin api started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
