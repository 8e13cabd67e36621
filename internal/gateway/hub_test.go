package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ernestchu/christmas-tree/internal/config"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sid = "tinsel-cocoa-reindeer-merry"

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(session.NewRegistry(), config.Websocket{SendBuffer: 16}, zerolog.Nop())
}

// connect attaches a fake connection that is never pumped.
func connect(h *Hub, id string, buffer int) *Client {
	c := &Client{ID: id, hub: h, send: make(chan *protocol.Message, buffer), log: zerolog.Nop()}
	h.addClient(c)
	return c
}

// deliver runs one inbound message through the hub the way Run does.
func deliver(t *testing.T, h *Hub, c *Client, typ string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(typ, payload)
	require.NoError(t, err)
	h.handle(c, msg)
	h.flushEvictions()
}

func drain(c *Client) []*protocol.Message {
	var out []*protocol.Message
	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(msgs []*protocol.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func decode[T any](t *testing.T, m *protocol.Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(m.Payload, &v))
	return v
}

func join(t *testing.T, h *Hub, c *Client, name string) {
	t.Helper()
	deliver(t, h, c, protocol.SessionJoin, protocol.JoinRequest{SessionID: sid, Name: name})
}

func TestJoinElectsFirstMember(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)

	join(t, h, a, "Alice")
	msgs := drain(a)
	require.Equal(t, []string{protocol.SessionJoined}, types(msgs))
	joined := decode[protocol.Joined](t, msgs[0])
	assert.Equal(t, "A", protocol.ID(joined.ControllerID))
	assert.Equal(t, []protocol.User{{ID: "A", Name: "Alice"}}, joined.Users)
	assert.Equal(t, "A", joined.UserID)

	join(t, h, b, "Bob")
	msgs = drain(a)
	require.Equal(t, []string{protocol.SessionUserJoined}, types(msgs))
	assert.Equal(t, protocol.User{ID: "B", Name: "Bob"}, decode[protocol.UserJoined](t, msgs[0]).User)

	msgs = drain(b)
	require.Equal(t, []string{protocol.SessionJoined}, types(msgs))
	joined = decode[protocol.Joined](t, msgs[0])
	assert.Equal(t, "A", protocol.ID(joined.ControllerID))
	assert.Equal(t, []protocol.User{{ID: "A", Name: "Alice"}, {ID: "B", Name: "Bob"}}, joined.Users)
}

func TestJoinRejectsBlankName(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)

	join(t, h, a, "   ")
	assert.Empty(t, drain(a))
	assert.Equal(t, 0, h.registry.Len())
}

func TestControllerSceneUpdateIsBroadcast(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	deliver(t, h, a, protocol.SceneUpdate, map[string]any{
		"sessionId":  sid,
		"sceneState": map[string]any{"sceneState": "FORMED", "rotationSpeed": 0.5},
	})
	drain(a)
	drain(b)

	deliver(t, h, a, protocol.SceneUpdate, map[string]any{
		"sessionId":  sid,
		"sceneState": map[string]any{"sceneState": "CAROUSEL"},
	})

	assert.Empty(t, drain(a), "sender does not get its own update back")
	msgs := drain(b)
	require.Equal(t, []string{protocol.SceneState}, types(msgs))
	delta := decode[protocol.ScenePayload](t, msgs[0]).SceneState
	mode, _ := delta.Mode()
	assert.Equal(t, protocol.ModeCarousel, mode)
	assert.Len(t, delta, 1)

	s, _ := h.registry.Session(sid)
	scene := s.Scene()
	mode, _ = scene.Mode()
	speed, _ := scene.RotationSpeed()
	assert.Equal(t, protocol.ModeCarousel, mode)
	assert.Equal(t, 0.5, speed)
}

func TestNonControllerWritesAreDropped(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	c := connect(h, "C", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	join(t, h, c, "Carol")
	drain(a)
	drain(b)
	drain(c)

	deliver(t, h, c, protocol.SceneUpdate, map[string]any{
		"sessionId":  sid,
		"sceneState": map[string]any{"sceneState": "CHAOS"},
	})
	deliver(t, h, c, protocol.PhotosUpdate, protocol.PhotosUpdateRequest{SessionID: sid, Photos: []string{"data:image/png;base64,AAAA"}})
	deliver(t, h, c, protocol.ControlOffer, protocol.ControlOfferRequest{SessionID: sid, TargetID: "B"})

	for _, cl := range []*Client{a, b, c} {
		assert.Empty(t, drain(cl), cl.ID)
	}
	s, _ := h.registry.Session(sid)
	assert.Empty(t, s.Scene())
	assert.Equal(t, "A", s.Controller())
}

func TestInvalidSceneValuesAreDropped(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	drain(a)
	drain(b)

	deliver(t, h, a, protocol.SceneUpdate, map[string]any{
		"sessionId":  sid,
		"sceneState": map[string]any{"sceneState": "SPINNING"},
	})
	deliver(t, h, a, protocol.SceneUpdate, map[string]any{"sessionId": sid})

	assert.Empty(t, drain(b))
}

func TestControlHandoff(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	deliver(t, h, a, protocol.SceneUpdate, map[string]any{
		"sessionId":  sid,
		"sceneState": map[string]any{"sceneState": "PHOTO"},
	})
	drain(a)
	drain(b)

	deliver(t, h, b, protocol.ControlRequest, protocol.SessionRef{SessionID: sid})
	msgs := drain(a)
	require.Equal(t, []string{protocol.ControlRequested}, types(msgs))
	assert.Equal(t, protocol.ControlRequestedNotice{RequesterID: "B", RequesterName: "Bob"}, decode[protocol.ControlRequestedNotice](t, msgs[0]))

	deliver(t, h, a, protocol.ControlOffer, protocol.ControlOfferRequest{SessionID: sid, TargetID: "B"})
	msgs = drain(b)
	require.Equal(t, []string{protocol.ControlOffer}, types(msgs))
	assert.Equal(t, protocol.ControlOfferNotice{FromID: "A", FromName: "Alice"}, decode[protocol.ControlOfferNotice](t, msgs[0]))

	deliver(t, h, b, protocol.ControlAccept, protocol.SessionRef{SessionID: sid})

	msgs = drain(a)
	require.Equal(t, []string{protocol.ControlChanged}, types(msgs))
	assert.Equal(t, "B", protocol.ID(decode[protocol.ControlChangedNotice](t, msgs[0]).ControllerID))

	msgs = drain(b)
	require.Equal(t, []string{protocol.ControlChanged, protocol.SceneSync}, types(msgs))
	assert.Equal(t, "B", protocol.ID(decode[protocol.ControlChangedNotice](t, msgs[0]).ControllerID))
	mode, _ := decode[protocol.ScenePayload](t, msgs[1]).SceneState.Mode()
	assert.Equal(t, protocol.ModePhoto, mode)

	s, _ := h.registry.Session(sid)
	assert.Equal(t, "B", s.Controller())
}

func TestControlDecline(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	drain(a)
	drain(b)

	deliver(t, h, a, protocol.ControlOffer, protocol.ControlOfferRequest{SessionID: sid, TargetID: "B"})
	drain(b)
	deliver(t, h, b, protocol.ControlDecline, protocol.ControlDeclineRequest{SessionID: sid, FromID: "A"})

	msgs := drain(a)
	require.Equal(t, []string{protocol.ControlDeclined}, types(msgs))
	assert.Equal(t, protocol.ControlDeclinedNotice{TargetID: "B", TargetName: "Bob"}, decode[protocol.ControlDeclinedNotice](t, msgs[0]))
	s, _ := h.registry.Session(sid)
	assert.Equal(t, "A", s.Controller())
}

func TestControllerDisconnectFailsOver(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	deliver(t, h, a, protocol.SceneUpdate, map[string]any{
		"sessionId":  sid,
		"sceneState": map[string]any{"sceneState": "CAROUSEL"},
	})
	drain(a)
	drain(b)

	h.disconnect(a)

	msgs := drain(b)
	require.Equal(t, []string{protocol.SessionUserLeft, protocol.ControlChanged, protocol.SceneSync}, types(msgs))
	assert.Equal(t, "A", decode[protocol.UserLeft](t, msgs[0]).UserID)
	assert.Equal(t, "B", protocol.ID(decode[protocol.ControlChangedNotice](t, msgs[1]).ControllerID))
	mode, _ := decode[protocol.ScenePayload](t, msgs[2]).SceneState.Mode()
	assert.Equal(t, protocol.ModeCarousel, mode)

	_, ok := <-a.send
	assert.False(t, ok, "send channel is closed on disconnect")

	h.disconnect(b)
	_, ok = h.registry.Session(sid)
	assert.False(t, ok, "empty session is removed")
}

func TestViewerLeaveKeepsController(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	drain(a)
	drain(b)

	deliver(t, h, b, protocol.SessionLeave, protocol.SessionRef{SessionID: sid})

	msgs := drain(a)
	require.Equal(t, []string{protocol.SessionUserLeft}, types(msgs))
	assert.Empty(t, drain(b))

	// the connection is still alive after an explicit leave
	_, ok := h.clients["B"]
	assert.True(t, ok)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	join(t, h, a, "Alice")

	h.disconnect(a)
	assert.NotPanics(t, func() { h.disconnect(a) })
}

func TestSlowClientIsEvicted(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	slow := connect(h, "S", 1)
	join(t, h, slow, "Slow")
	join(t, h, a, "Alice")

	// slow's buffer still holds session:joined, user-joined overflowed it
	_, ok := h.clients["S"]
	assert.False(t, ok)
	s, _ := h.registry.Session(sid)
	assert.False(t, s.Has("S"))
	assert.Equal(t, "A", s.Controller())

	msgs := drain(a)
	require.Equal(t, []string{
		protocol.SessionJoined,
		protocol.SessionUserLeft,
		protocol.ControlChanged,
		protocol.SceneSync,
	}, types(msgs))
}

func TestEvictedClientCannotRejoin(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	slow := connect(h, "S", 1)
	join(t, h, slow, "Slow")
	join(t, h, a, "Alice")
	require.True(t, slow.evicted)

	// a join its read pump handed over before the eviction landed
	deliver(t, h, slow, protocol.SessionJoin, protocol.JoinRequest{SessionID: "ghost-town", Name: "Slow"})
	_, ok := h.registry.Session("ghost-town")
	assert.False(t, ok)
	assert.Empty(t, h.registry.SessionsOf("S"))

	// nor does a stale connection object under a reused id get through
	stale := &Client{ID: "A", hub: h, send: make(chan *protocol.Message, 16), log: zerolog.Nop()}
	deliver(t, h, stale, protocol.SessionLeave, protocol.SessionRef{SessionID: sid})
	s, ok := h.registry.Session(sid)
	require.True(t, ok)
	assert.True(t, s.Has("A"))
}

func TestRejoinAnnouncesOnlyRenames(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	drain(a)
	drain(b)

	join(t, h, b, "Bob")
	assert.Equal(t, []string{protocol.SessionJoined}, types(drain(b)))
	assert.Empty(t, drain(a))

	join(t, h, b, "Robert")
	assert.Equal(t, []string{protocol.SessionJoined}, types(drain(b)))
	msgs := drain(a)
	require.Equal(t, []string{protocol.SessionUserJoined}, types(msgs))
	assert.Equal(t, protocol.User{ID: "B", Name: "Robert"}, decode[protocol.UserJoined](t, msgs[0]).User)
}

func TestUnknownTypeIsDropped(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	deliver(t, h, a, "tree:explode", nil)
	assert.Empty(t, drain(a))
}

func TestRelayForwardsPayloadVerbatim(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)

	raw := json.RawMessage(`{"to":"B","type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1\r\n","x-extra":[1,2,{"k":null}]}`)
	for _, typ := range []string{protocol.WebrtcOffer, protocol.WebrtcAnswer, protocol.WebrtcIce} {
		h.handle(a, &protocol.Message{Type: typ, Payload: raw})

		msgs := drain(b)
		require.Len(t, msgs, 1, typ)
		assert.Equal(t, typ, msgs[0].Type)
		assert.Equal(t, "A", msgs[0].From)
		assert.Equal(t, []byte(raw), []byte(msgs[0].Payload))
	}
	assert.Empty(t, drain(a))
}

func TestRelayToUnknownTargetIsNoop(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)

	h.handle(a, &protocol.Message{Type: protocol.WebrtcIce, Payload: json.RawMessage(`{"to":"Z","candidate":{}}`)})
	h.handle(a, &protocol.Message{Type: protocol.WebrtcIce, Payload: json.RawMessage(`{"candidate":{}}`)})

	assert.Empty(t, drain(a))
	assert.Empty(t, drain(b))
}

func TestViewerJoinGoesToController(t *testing.T) {
	h := newTestHub(t)
	a := connect(h, "A", 16)
	b := connect(h, "B", 16)
	join(t, h, a, "Alice")
	join(t, h, b, "Bob")
	drain(a)
	drain(b)

	deliver(t, h, b, protocol.WebrtcViewerJoin, protocol.SessionRef{SessionID: sid})
	msgs := drain(a)
	require.Equal(t, []string{protocol.WebrtcViewerJoin}, types(msgs))
	assert.Equal(t, "B", decode[protocol.ViewerJoin](t, msgs[0]).ViewerID)

	// the controller asking to view itself goes nowhere
	deliver(t, h, a, protocol.WebrtcViewerJoin, protocol.SessionRef{SessionID: sid})
	assert.Empty(t, drain(a))
	assert.Empty(t, drain(b))
}

func TestRunServesInspect(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := &Client{ID: "A", hub: h, send: make(chan *protocol.Message, 16), log: zerolog.Nop()}
	h.Register(c)
	msg, err := protocol.NewMessage(protocol.SessionJoin, protocol.JoinRequest{SessionID: sid, Name: "Alice"})
	require.NoError(t, err)
	h.Dispatch(c, msg)

	var members int
	require.NoError(t, h.Inspect(context.Background(), func(r *session.Registry) {
		if s, ok := r.Session(sid); ok {
			members = s.Len()
		}
	}))
	assert.Equal(t, 1, members)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	// calls after shutdown return instead of blocking
	h.Unregister(c)
	assert.Error(t, h.Inspect(context.Background(), func(*session.Registry) {}))
}
