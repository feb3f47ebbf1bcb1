package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"dmchat/internal/api"
	"dmchat/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, frontendURL, addr string) *APIServer {
	if addr == "" {
		addr = ":5000"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: NewAPIRouter(apiHandlers, wsServer, frontendURL),
		},
	}
}

// NewAPIRouter builds the public routes. It is separate from the server so
// tests can mount it on httptest.
func NewAPIRouter(apiHandlers *api.API, wsServer *ws.Server, frontendURL string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(api.CORS(frontendURL))

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", apiHandlers.RegisterHandler)
		r.Post("/verify-otp", apiHandlers.VerifyOTPHandler)
		r.Post("/resend-otp", apiHandlers.ResendOTPHandler)
		r.Post("/login", apiHandlers.LoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandlers.RequireAuth)
			r.Get("/all-users", apiHandlers.UsersHandler)
			r.Get("/messages/{otherUserId}", apiHandlers.HistoryHandler)
		})
	})

	r.Route("/api/messages", func(r chi.Router) {
		r.Use(apiHandlers.RequireAuth)
		r.Get("/{otherUserId}", apiHandlers.HistoryHandler)
		r.Post("/send/{otherUserId}", apiHandlers.SendMessageHandler)
	})

	// WebSocket endpoint
	r.Get("/ws", wsServer.HandleConnections)

	return r
}

func (s *APIServer) Start() error {
	slog.Info("api server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
