// Package messages implements sending and reading direct messages.
package messages

import (
	"context"
	"fmt"
	"log/slog"

	"dmchat/internal/content"
	"dmchat/internal/models"
)

type store interface {
	GetUser(id string) (models.User, error)
	CreateMessage(senderID, receiverID, text string) (models.Message, error)
	QueryThread(userA, userB string) ([]models.Message, error)
}

type deliverer interface {
	Deliver(payload models.MessagePayload)
}

type Service struct {
	store    store
	delivery deliverer
}

func NewService(store store, delivery deliverer) *Service {
	return &Service{store: store, delivery: delivery}
}

// Send persists a message and hands it to live delivery. Nothing is pushed
// when persistence fails.
func (s *Service) Send(ctx context.Context, senderID, receiverID, text string) (models.MessagePayload, error) {
	if err := ctx.Err(); err != nil {
		return models.MessagePayload{}, err
	}

	if receiverID == "" {
		return models.MessagePayload{}, fmt.Errorf("receiver: %w", models.ErrNotFound)
	}

	receiver, err := s.store.GetUser(receiverID)
	if err != nil {
		return models.MessagePayload{}, fmt.Errorf("receiver %s: %w", receiverID, err)
	}

	sender, err := s.store.GetUser(senderID)
	if err != nil {
		return models.MessagePayload{}, fmt.Errorf("sender %s: %w", senderID, err)
	}

	clean, err := content.SanitizeMessage(text)
	if err != nil {
		return models.MessagePayload{}, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}

	msg, err := s.store.CreateMessage(sender.ID, receiver.ID, clean)
	if err != nil {
		return models.MessagePayload{}, fmt.Errorf("failed to store message: %w", err)
	}

	payload := models.MessagePayload{
		ID:        msg.ID,
		Sender:    models.Party{ID: sender.ID, Username: sender.Username},
		Receiver:  models.Party{ID: receiver.ID, Username: receiver.Username},
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}

	slog.Debug("message stored", "message_id", msg.ID, "sender_id", sender.ID, "receiver_id", receiver.ID)
	s.delivery.Deliver(payload)

	return payload, nil
}

// History returns the conversation between two users, oldest first.
func (s *Service) History(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.QueryThread(userID, otherID)
}
