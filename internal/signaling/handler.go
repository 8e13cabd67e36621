package signaling

import (
	"context"

	"github.com/ernestchu/christmas-tree/internal/protocol"
)

// HandlerFunc consumes one server message.
type HandlerFunc func(msg *protocol.Message)

// Handler routes incoming messages by type. All handlers run on the
// goroutine that called Run, in arrival order.
type Handler struct {
	routes   map[string]HandlerFunc
	fallback HandlerFunc
}

// NewHandler creates a new message handler.
func NewHandler() *Handler {
	return &Handler{routes: make(map[string]HandlerFunc)}
}

// On registers fn for messages of type t, replacing any earlier one.
func (h *Handler) On(t string, fn HandlerFunc) *Handler {
	h.routes[t] = fn
	return h
}

// Otherwise registers fn for messages nothing else claimed.
func (h *Handler) Otherwise(fn HandlerFunc) *Handler {
	h.fallback = fn
	return h
}

// Run dispatches until in is closed or ctx is done.
func (h *Handler) Run(ctx context.Context, in <-chan *protocol.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			h.Dispatch(msg)
		}
	}
}

// Dispatch routes a single message.
func (h *Handler) Dispatch(msg *protocol.Message) {
	if fn, ok := h.routes[msg.Type]; ok {
		fn(msg)
		return
	}
	if h.fallback != nil {
		h.fallback(msg)
	}
}
