package ws

import (
	"dmchat/internal/metrics"
	"dmchat/internal/models"
	"dmchat/internal/presence"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of one physical connection.
type State int32

const (
	StateConnecting State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the hub's view of one connection. The user id is captured at
// connect time and is what teardown is keyed on together with the handle.
type Session struct {
	handle *presence.Handle
	userID string
	state  atomic.Int32
}

func (s *Session) Handle() *presence.Handle { return s.handle }
func (s *Session) UserID() string           { return s.userID }
func (s *Session) State() State             { return State(s.state.Load()) }

// Hub drives connection lifecycle: it is the only writer of the presence
// registry and broadcasts a presence snapshot after every mutation.
type Hub struct {
	registry   *presence.Registry
	metrics    *metrics.Metrics
	sendBuffer int

	// Map of handle ID -> session, for every open connection
	// whether identified or not.
	sessions map[string]*Session

	mu sync.Mutex
}

func NewHub(registry *presence.Registry, m *metrics.Metrics, sendBuffer int) *Hub {
	return &Hub{
		registry:   registry,
		metrics:    m,
		sendBuffer: sendBuffer,
		sessions:   make(map[string]*Session),
	}
}

// Connect opens a session. A missing identity (empty, "undefined" or "null")
// leaves the session usable but never a delivery target.
func (h *Hub) Connect(userID string) *Session {
	s := &Session{
		handle: presence.NewHandle(h.sendBuffer),
		userID: normalizeIdentity(userID),
	}
	s.state.Store(int32(StateConnecting))

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s.handle.ID()] = s
	h.metrics.ConnectionsActive.Inc()

	if s.userID != "" {
		h.registry.SetOnline(s.userID, s.handle)
		s.state.Store(int32(StateIdentified))
	} else {
		slog.Debug("connection without identity", "conn_id", s.handle.ID())
	}

	h.broadcastLocked()
	return s
}

// Disconnect closes a session. Only the entry still owned by this
// connection is released, so a superseded connection closing late does not
// take its user offline.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.State() == StateClosed {
		return
	}
	s.state.Store(int32(StateClosed))

	delete(h.sessions, s.handle.ID())
	h.metrics.ConnectionsActive.Dec()

	if s.userID != "" {
		h.registry.Release(s.userID, s.handle)
	}

	h.broadcastLocked()
	s.handle.Close()
}

// GoOffline handles an explicit offline signal on a connection that stays
// open. userID, when given, must match the connection's own identity.
func (h *Hub) GoOffline(s *Session, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.State() != StateIdentified {
		return false
	}
	if userID = normalizeIdentity(userID); userID != "" && userID != s.userID {
		slog.Warn("offline signal for another user ignored",
			"conn_id", s.handle.ID(),
			"user_id", s.userID,
			"requested_user_id", userID)
		return false
	}

	s.state.Store(int32(StateConnecting))

	// A connection replaced by a newer one for the same user no longer owns
	// the entry.
	if !h.registry.Release(s.userID, s.handle) {
		return false
	}

	h.broadcastLocked()
	return true
}

// Online returns the current presence snapshot.
func (h *Hub) Online() []string {
	return h.registry.SnapshotIDs()
}

func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// broadcastLocked sends the snapshot to every open connection.
// Must be called with h.mu held, in the same critical section as the
// registry mutation it reports.
func (h *Hub) broadcastLocked() {
	ids := h.registry.SnapshotIDs()
	msg := models.ServerMessage{
		Type:    models.ServerMessageTypeOnlineUsers,
		UserIDs: ids,
	}

	for _, s := range h.sessions {
		if !s.handle.Push(msg) {
			slog.Debug("presence snapshot dropped", "conn_id", s.handle.ID())
		}
	}

	h.metrics.UsersOnline.Set(float64(len(ids)))
	h.metrics.PresenceBroadcasts.Inc()
}

func normalizeIdentity(userID string) string {
	userID = strings.TrimSpace(userID)
	switch userID {
	case "undefined", "null":
		return ""
	}
	return userID
}
