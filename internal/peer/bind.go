package peer

import (
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/signaling"
)

// Bind routes the relayed negotiation messages of h to m.
func (m *Manager) Bind(h *signaling.Handler) {
	h.On(protocol.WebrtcViewerJoin, func(msg *protocol.Message) {
		var p protocol.ViewerJoin
		if err := msg.Decode(&p); err != nil || p.ViewerID == "" {
			m.log.Warn().Err(err).Msg("bad viewer-join")
			return
		}
		m.report(m.HandleViewerJoin(p.ViewerID))
	})
	h.On(protocol.WebrtcOffer, func(msg *protocol.Message) {
		var p protocol.SDPSignal
		if err := msg.Decode(&p); err != nil {
			m.report(newError("handle offer", msg.From, err))
			return
		}
		m.report(m.HandleOffer(msg.From, p))
	})
	h.On(protocol.WebrtcAnswer, func(msg *protocol.Message) {
		var p protocol.SDPSignal
		if err := msg.Decode(&p); err != nil {
			m.report(newError("handle answer", msg.From, err))
			return
		}
		m.report(m.HandleAnswer(msg.From, p))
	})
	h.On(protocol.WebrtcIce, func(msg *protocol.Message) {
		var p protocol.ICESignal
		if err := msg.Decode(&p); err != nil {
			m.report(newError("handle ICE", msg.From, err))
			return
		}
		m.report(m.HandleICE(msg.From, p))
	})
}

// report logs negotiation errors. There is no retry: a stuck handshake
// stays stuck until the next offer.
func (m *Manager) report(err error) {
	if err != nil {
		m.log.Debug().Err(err).Msg("negotiation")
	}
}
