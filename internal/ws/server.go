package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

type identityVerifier interface {
	UserID(token string) (string, error)
}

type Server struct {
	auth     identityVerifier
	hub      *Hub
	sender   messageSender
	upgrader *websocket.Upgrader
}

// NewServer builds the WebSocket endpoint. An empty allowedOrigin accepts
// any origin.
func NewServer(auth identityVerifier, hub *Hub, sender messageSender, allowedOrigin string) *Server {
	return &Server{
		auth:   auth,
		hub:    hub,
		sender: sender,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	id := s.identify(r)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("error upgrading to websocket", "error", err)
		return
	}

	conn := NewConnection(s.hub, s.sender, ws, id)
	slog.Info("user connected", "conn_id", conn.Session().Handle().ID(), "user_id", conn.Session().UserID())

	if err := conn.Handle(r.Context()); err != nil {
		slog.Debug("connection ended", "conn_id", conn.Session().Handle().ID(), "error", err)
	}
	slog.Info("user disconnected", "conn_id", conn.Session().Handle().ID(), "user_id", conn.Session().UserID())
}

// identify resolves the handshake identity. A token, when present, wins over
// the plain userId query parameter. Failure is not fatal: the connection
// proceeds without identity.
func (s *Server) identify(r *http.Request) Identity {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if token != "" {
		userID, err := s.auth.UserID(token)
		if err != nil {
			slog.Info("websocket handshake with invalid token", "remote_addr", r.RemoteAddr, "error", err)
			return Identity{}
		}
		return Identity{UserID: userID, Verified: true}
	}

	return Identity{UserID: r.URL.Query().Get("userId")}
}
