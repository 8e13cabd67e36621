package gateway

import (
	"github.com/ernestchu/christmas-tree/internal/metrics"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/session"
)

// onViewerJoin asks the session's controller to start streaming to the
// sender.
func (h *Hub) onViewerJoin(c *Client, msg *protocol.Message) error {
	var req protocol.SessionRef
	if err := msg.Decode(&req); err != nil {
		return err
	}
	s, ok := h.registry.Session(req.SessionID)
	if !ok {
		return session.ErrUnknownSession
	}
	if !s.Has(c.ID) {
		return session.ErrUnknownUser
	}
	controller := s.Controller()
	switch controller {
	case "":
		return session.ErrNoController
	case c.ID:
		return session.ErrIsController
	}
	if !h.sendTo(controller, h.newMessage(protocol.WebrtcViewerJoin, protocol.ViewerJoin{ViewerID: c.ID})) {
		return errUnknownTarget
	}
	metrics.Relayed.WithLabelValues(msg.Type).Inc()
	return nil
}

// onRelay forwards offer, answer and ice messages to the connection named
// in payload.to. Only the routing field is read; the payload goes out
// byte for byte as it came in.
func (h *Hub) onRelay(c *Client, msg *protocol.Message) error {
	var route protocol.Route
	if err := msg.Decode(&route); err != nil {
		return err
	}
	if !h.sendTo(route.To, msg.Forward(c.ID)) {
		return errUnknownTarget
	}
	metrics.Relayed.WithLabelValues(msg.Type).Inc()
	return nil
}
