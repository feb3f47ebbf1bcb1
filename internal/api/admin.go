package api

import (
	"net/http"
)

type presenceView interface {
	Online() []string
	ConnectionCount() int
}

type AdminHandler struct {
	presence presenceView
}

func NewAdminHandler(presence presenceView) *AdminHandler {
	return &AdminHandler{presence: presence}
}

type OnlineResponse struct {
	UserIDs     []string `json:"userIds"`
	Connections int      `json:"connections"`
}

// OnlineHandler reports the current presence snapshot and the number of open
// sockets, identified or not.
func (h *AdminHandler) OnlineHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OnlineResponse{
		UserIDs:     h.presence.Online(),
		Connections: h.presence.ConnectionCount(),
	})
}
