// Package delivery pushes already-persisted messages to live connections.
// Delivery is best effort and at most once: the message store is the system
// of record and clients catch up by fetching history after reconnecting.
package delivery

import (
	"dmchat/internal/metrics"
	"dmchat/internal/models"
	"dmchat/internal/presence"
	"log/slog"
)

type Config struct {
	// EchoToSender also pushes the message to the sender's own connection.
	EchoToSender bool
}

type Coordinator struct {
	Config
	registry *presence.Registry
	metrics  *metrics.Metrics
}

func New(registry *presence.Registry, m *metrics.Metrics, cfg Config) *Coordinator {
	return &Coordinator{
		Config:   cfg,
		registry: registry,
		metrics:  m,
	}
}

// Deliver must only be called once the message has been stored.
// It never fails: an offline party or a dropped push is a normal outcome.
func (c *Coordinator) Deliver(payload models.MessagePayload) {
	frame := models.ServerMessage{
		Type:    models.ServerMessageTypeNewMessage,
		Message: &payload,
	}

	receiver, ok := c.registry.Lookup(payload.Receiver.ID)
	c.push(metrics.TargetReceiver, payload.Receiver.ID, receiver, ok, frame)

	if !c.EchoToSender || payload.Sender.ID == payload.Receiver.ID {
		return
	}

	sender, ok := c.registry.Lookup(payload.Sender.ID)
	if ok && sender == receiver {
		return
	}
	c.push(metrics.TargetSender, payload.Sender.ID, sender, ok, frame)
}

func (c *Coordinator) push(target, userID string, h *presence.Handle, online bool, frame models.ServerMessage) {
	outcome := metrics.OutcomePushed
	switch {
	case !online:
		outcome = metrics.OutcomeOffline
	case !h.Push(frame):
		// Connection went away between lookup and push, or its queue is full.
		outcome = metrics.OutcomeDropped
	}

	c.metrics.Deliveries.WithLabelValues(target, outcome).Inc()
	if outcome != metrics.OutcomePushed {
		slog.Debug("message not pushed",
			"message_id", frame.Message.ID,
			"target", target,
			"user_id", userID,
			"outcome", outcome)
	}
}
