package presence

import (
	"dmchat/internal/models"
	"sync"

	"github.com/google/uuid"
)

const DefaultSendBuffer = 64

// Handle is a non-owning reference to one live connection's outbound queue.
// The transport owns the socket; the handle only carries frames to it.
type Handle struct {
	id  string
	out chan models.ServerMessage

	mu     sync.Mutex
	closed bool
}

func NewHandle(buffer int) *Handle {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Handle{
		id:  uuid.NewString(),
		out: make(chan models.ServerMessage, buffer),
	}
}

func (h *Handle) ID() string {
	return h.id
}

// Messages is drained by the connection's write loop.
// It is closed once the handle is closed.
func (h *Handle) Messages() <-chan models.ServerMessage {
	return h.out
}

// Push enqueues msg without blocking. It reports false when the handle is
// closed or its queue is full; the frame is dropped in both cases.
func (h *Handle) Push(msg models.ServerMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	select {
	case h.out <- msg:
		return true
	default:
		return false
	}
}

func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.out)
}

func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
