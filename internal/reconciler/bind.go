package reconciler

import (
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/signaling"
)

// Bind routes the session, scene and control events of h to r.
func (r *Reconciler) Bind(h *signaling.Handler) {
	h.On(protocol.SessionJoined, decoded(r, r.ApplyJoined))
	h.On(protocol.SessionUserJoined, decoded(r, func(p protocol.UserJoined) { r.ApplyUserJoined(p.User) }))
	h.On(protocol.SessionUserLeft, decoded(r, func(p protocol.UserLeft) { r.ApplyUserLeft(p.UserID) }))
	h.On(protocol.ControlChanged, decoded(r, func(p protocol.ControlChangedNotice) { r.ApplyControlChanged(protocol.ID(p.ControllerID)) }))
	h.On(protocol.SceneState, decoded(r, func(p protocol.ScenePayload) { r.ApplySceneState(p.SceneState) }))
	h.On(protocol.SceneSync, decoded(r, func(p protocol.ScenePayload) { r.ApplySceneSync(p.SceneState) }))
	h.On(protocol.PhotosUpdate, decoded(r, func(p protocol.PhotosPayload) { r.ApplyPhotos(p.Photos) }))
	h.On(protocol.ControlRequested, decoded(r, r.ApplyControlRequested))
	h.On(protocol.ControlOffer, decoded(r, r.ApplyControlOffer))
	h.On(protocol.ControlDeclined, decoded(r, r.ApplyControlDeclined))
}

func decoded[T any](r *Reconciler, fn func(T)) signaling.HandlerFunc {
	return func(msg *protocol.Message) {
		var p T
		if err := msg.Decode(&p); err != nil {
			r.log.Warn().Err(err).Str("type", msg.Type).Msg("bad server message")
			return
		}
		fn(p)
	}
}
