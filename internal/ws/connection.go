package ws

import (
	"context"
	"dmchat/internal/models"
	"errors"
	"log/slog"
	"sync"
)

var errHandleClosed = errors.New("connection handle closed")

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Connect(userID string) *Session
	Disconnect(s *Session)
	GoOffline(s *Session, userID string) bool
}

type messageSender interface {
	Send(ctx context.Context, senderID, receiverID, text string) (models.MessagePayload, error)
}

// Identity is who a socket claims to be at handshake. Verified is set only
// when a token proved it; a plain userId is good for presence alone.
type Identity struct {
	UserID   string
	Verified bool
}

type Connection struct {
	ws         wsConnection
	hub        messageHub
	sender     messageSender
	session    *Session
	verified   bool
	fromClient chan models.ClientMessage
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	sender messageSender,
	ws wsConnection,
	id Identity,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		sender:     sender,
		session:    hub.Connect(id.UserID),
		verified:   id.Verified,
		fromClient: make(chan models.ClientMessage),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Session() *Session {
	return c.session
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Disconnect(c.session)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	outbound := c.session.Handle().Messages()
	for {
		select {
		case msg := <-c.fromClient:
			if err := c.processClientMessage(ctx, msg); err != nil {
				return err
			}
		case msg, ok := <-outbound:
			if !ok {
				return errHandleClosed
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientMessage(ctx context.Context, msg models.ClientMessage) error {
	switch msg.Type {
	case models.ClientMessageTypeOffline:
		c.hub.GoOffline(c.session, msg.UserID)
	case models.ClientMessageTypeSend:
		senderID := c.session.UserID()
		if senderID == "" || !c.verified {
			slog.Info("socket send without verified identity",
				"conn_id", c.session.Handle().ID(),
				"user_id", senderID)
			return c.writeError("Not authorized.")
		}
		// The message reaches this connection through the delivery echo.
		if _, err := c.sender.Send(ctx, senderID, msg.ReceiverID, msg.Text); err != nil {
			slog.Info("socket send failed", "user_id", senderID, "receiver_id", msg.ReceiverID, "error", err)
			return c.writeError(sendErrorText(err))
		}
	default:
		slog.Debug("unknown client message", "type", msg.Type, "conn_id", c.session.Handle().ID())
	}

	return nil
}

// sendErrorText turns a send failure into the text shown to the client.
func sendErrorText(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, models.ErrNotFound):
		return "Receiver not found."
	}
	return "Message could not be sent."
}

func (c *Connection) writeError(text string) error {
	return c.ws.WriteJSON(models.ServerMessage{
		Type:  models.ServerMessageTypeError,
		Error: text,
	})
}
