package models

import (
	"encoding/json"
	"errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUserExists         = errors.New("user already exists")
	ErrNotVerified        = errors.New("user is not verified")
	ErrAlreadyVerified    = errors.New("user is already verified")
	ErrInvalidOTP         = errors.New("invalid or expired otp")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrInvalidInput       = errors.New("invalid input")
)

// User is the public view of an account. Secrets never leave the auth package.
type User struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
	Verified  bool   `json:"-"`
	CreatedAt int64  `json:"createdAt"` // Unix timestamp (milliseconds)
}

// Message is a persisted direct message. It is immutable once created.
type Message struct {
	ID         string `json:"_id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"createdAt"` // Unix timestamp (milliseconds)
}

// Party is a message participant with its resolved display name.
type Party struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// MessagePayload is a persisted message enriched with display names,
// the shape pushed to clients and returned from the send endpoint.
type MessagePayload struct {
	ID        string `json:"_id"`
	Sender    Party  `json:"senderId"`
	Receiver  Party  `json:"receiverId"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// ClientMessage represents a message sent from the client to the server.
type ClientMessage struct {
	Type       ClientMessageType `json:"type"`
	UserID     string            `json:"userId,omitempty"`
	ReceiverID string            `json:"receiverId,omitempty"`
	Text       string            `json:"text,omitempty"`
}

// ServerMessage represents a message to the client.
type ServerMessage struct {
	Type    ServerMessageType `json:"type"`
	UserIDs []string          `json:"userIds,omitempty"`
	Message *MessagePayload   `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// MarshalJSON writes userIds on onlineUsers frames only. There an empty
// snapshot is always [] rather than absent.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	type frame ServerMessage
	if m.Type != ServerMessageTypeOnlineUsers {
		return json.Marshal(frame(m))
	}

	ids := m.UserIDs
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(struct {
		frame
		UserIDs []string `json:"userIds"`
	}{frame(m), ids})
}

type ClientMessageType string

const (
	ClientMessageTypeOffline ClientMessageType = "offline"
	ClientMessageTypeSend    ClientMessageType = "send"
)

type ServerMessageType string

const (
	ServerMessageTypeOnlineUsers ServerMessageType = "onlineUsers"
	ServerMessageTypeNewMessage  ServerMessageType = "newMessage"
	ServerMessageTypeError       ServerMessageType = "error"
)

// APIResponse is the generic JSON body for non-data responses.
type APIResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}
