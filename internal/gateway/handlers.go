package gateway

import (
	"fmt"
	"strings"

	"github.com/ernestchu/christmas-tree/internal/metrics"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/session"
)

func (h *Hub) onJoin(c *Client, msg *protocol.Message) error {
	var req protocol.JoinRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: blank name", protocol.ErrInvalidMessage)
	}

	u := session.User{ID: c.ID, Name: name}
	var prev session.User
	var member bool
	if s, ok := h.registry.Session(req.SessionID); ok {
		prev, member = s.User(c.ID)
	}
	s, created := h.registry.Join(req.SessionID, u)
	metrics.Sessions.Set(float64(h.registry.Len()))
	if created {
		h.log.Info().Str("session", s.ID).Msg("session created")
	}
	h.log.Debug().Str("session", s.ID).Str("client", c.ID).Str("name", name).Msg("joined")

	h.send(c, h.newMessage(protocol.SessionJoined, s.Joined(c.ID)))
	if member && prev.Name == name {
		return nil
	}
	// a rename goes out as user-joined, rosters replace the entry in place
	h.broadcast(s.Users(), h.newMessage(protocol.SessionUserJoined, protocol.UserJoined{User: u.Wire()}), c.ID)
	return nil
}

func (h *Hub) onLeave(c *Client, msg *protocol.Message) error {
	var req protocol.SessionRef
	if err := msg.Decode(&req); err != nil {
		return err
	}
	d, err := h.registry.Leave(req.SessionID, c.ID)
	if err != nil {
		return err
	}
	h.announceDeparture(d)
	return nil
}

// announceDeparture tells the remaining members who left and, when the
// leaver held control, who holds it now. The successor additionally gets
// the authoritative scene so it can resume from it.
func (h *Hub) announceDeparture(d session.Departure) {
	metrics.Sessions.Set(float64(h.registry.Len()))
	if d.Deleted {
		h.log.Info().Str("session", d.SessionID).Msg("session deleted")
		return
	}

	h.broadcast(d.Remaining, h.newMessage(protocol.SessionUserLeft, protocol.UserLeft{UserID: d.User.ID}), "")
	if !d.ControllerChanged {
		return
	}

	metrics.ControlChanges.WithLabelValues("failover").Inc()
	h.log.Debug().Str("session", d.SessionID).Str("controller", d.Controller).Msg("control passed on departure")
	h.broadcast(d.Remaining, h.newMessage(protocol.ControlChanged, protocol.ControlChangedNotice{
		ControllerID: protocol.NullableID(d.Controller),
	}), "")
	if d.Controller != "" {
		h.sendTo(d.Controller, h.newMessage(protocol.SceneSync, protocol.ScenePayload{SceneState: d.Scene}))
	}
}

func (h *Hub) onSceneUpdate(c *Client, msg *protocol.Message) error {
	var req protocol.SceneUpdateRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}
	if err := h.registry.UpdateScene(req.SessionID, c.ID, req.SceneState); err != nil {
		return err
	}
	s, _ := h.registry.Session(req.SessionID)
	h.broadcast(s.Users(), h.newMessage(protocol.SceneState, protocol.ScenePayload{SceneState: req.SceneState}), c.ID)
	return nil
}

func (h *Hub) onPhotosUpdate(c *Client, msg *protocol.Message) error {
	var req protocol.PhotosUpdateRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}
	if err := h.registry.UpdatePhotos(req.SessionID, c.ID, req.Photos); err != nil {
		return err
	}
	s, _ := h.registry.Session(req.SessionID)
	h.broadcast(s.Users(), h.newMessage(protocol.PhotosUpdate, protocol.PhotosPayload{Photos: req.Photos}), c.ID)
	return nil
}

func (h *Hub) onControlRequest(c *Client, msg *protocol.Message) error {
	var req protocol.SessionRef
	if err := msg.Decode(&req); err != nil {
		return err
	}
	requester, holder, err := h.registry.RequestControl(req.SessionID, c.ID)
	if err != nil {
		return err
	}
	h.sendTo(holder, h.newMessage(protocol.ControlRequested, protocol.ControlRequestedNotice{
		RequesterID:   requester.ID,
		RequesterName: requester.Name,
	}))
	return nil
}

func (h *Hub) onControlOffer(c *Client, msg *protocol.Message) error {
	var req protocol.ControlOfferRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}
	from, err := h.registry.OfferControl(req.SessionID, c.ID, req.TargetID)
	if err != nil {
		return err
	}
	h.sendTo(req.TargetID, h.newMessage(protocol.ControlOffer, protocol.ControlOfferNotice{
		FromID:   from.ID,
		FromName: from.Name,
	}))
	return nil
}

// onControlAccept hands control to the sender. Acceptance is not checked
// against an outstanding offer; any member may accept.
func (h *Hub) onControlAccept(c *Client, msg *protocol.Message) error {
	var req protocol.SessionRef
	if err := msg.Decode(&req); err != nil {
		return err
	}
	scene, err := h.registry.AcceptControl(req.SessionID, c.ID)
	if err != nil {
		return err
	}
	s, _ := h.registry.Session(req.SessionID)
	metrics.ControlChanges.WithLabelValues("accept").Inc()
	h.log.Debug().Str("session", s.ID).Str("controller", c.ID).Msg("control accepted")

	h.broadcast(s.Users(), h.newMessage(protocol.ControlChanged, protocol.ControlChangedNotice{
		ControllerID: protocol.NullableID(c.ID),
	}), "")
	h.send(c, h.newMessage(protocol.SceneSync, protocol.ScenePayload{SceneState: scene}))
	return nil
}

func (h *Hub) onControlDecline(c *Client, msg *protocol.Message) error {
	var req protocol.ControlDeclineRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}
	target, err := h.registry.DeclineControl(req.SessionID, c.ID)
	if err != nil {
		return err
	}
	if !h.sendTo(req.FromID, h.newMessage(protocol.ControlDeclined, protocol.ControlDeclinedNotice{
		TargetID:   target.ID,
		TargetName: target.Name,
	})) {
		return errUnknownTarget
	}
	return nil
}
