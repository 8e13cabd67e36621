package gateway

import (
	"context"
	"errors"

	"github.com/ernestchu/christmas-tree/internal/config"
	"github.com/ernestchu/christmas-tree/internal/metrics"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/session"
	"github.com/rs/zerolog"
)

var (
	errUnknownType   = errors.New("unknown message type")
	errUnknownTarget = errors.New("relay target is not connected")
	errDisconnected  = errors.New("sender is disconnected")
)

type inbound struct {
	client *Client
	msg    *protocol.Message
}

type handlerFunc func(c *Client, msg *protocol.Message) error

// Hub is the message gateway. It owns the session registry and the table
// of connected clients; both are touched only from the Run goroutine, one
// message at a time.
type Hub struct {
	registry *session.Registry
	clients  map[string]*Client
	routes   map[string]handlerFunc
	cfg      config.Websocket
	log      zerolog.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	inspect    chan func(*session.Registry)
	done       chan struct{}

	// clients whose send buffer overflowed during the current message
	evict []*Client
}

// NewHub creates a gateway around an explicit registry instance.
func NewHub(registry *session.Registry, cfg config.Websocket, log zerolog.Logger) *Hub {
	h := &Hub{
		registry:   registry,
		clients:    make(map[string]*Client),
		cfg:        cfg,
		log:        log.With().Str("mod", "gateway").Logger(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		inspect:    make(chan func(*session.Registry)),
		done:       make(chan struct{}),
	}
	h.routes = map[string]handlerFunc{
		protocol.SessionJoin:      h.onJoin,
		protocol.SessionLeave:     h.onLeave,
		protocol.SceneUpdate:      h.onSceneUpdate,
		protocol.PhotosUpdate:     h.onPhotosUpdate,
		protocol.ControlRequest:   h.onControlRequest,
		protocol.ControlOffer:     h.onControlOffer,
		protocol.ControlAccept:    h.onControlAccept,
		protocol.ControlDecline:   h.onControlDecline,
		protocol.WebrtcViewerJoin: h.onViewerJoin,
		protocol.WebrtcOffer:      h.onRelay,
		protocol.WebrtcAnswer:     h.onRelay,
		protocol.WebrtcIce:        h.onRelay,
	}
	return h
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (sessions, clients).
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, c := range h.clients {
			close(c.send)
		}
		h.clients = map[string]*Client{}
		metrics.Clients.Set(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("hub stopped")
			return

		case c := <-h.register:
			h.addClient(c)

		case c := <-h.unregister:
			h.disconnect(c)

		case in := <-h.inbound:
			h.handle(in.client, in.msg)

		case fn := <-h.inspect:
			fn(h.registry)
		}
		h.flushEvictions()
	}
}

// Register hands a freshly upgraded connection to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister tells the hub that the connection is gone.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch queues one inbound message for processing.
func (h *Hub) Dispatch(c *Client, msg *protocol.Message) {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
	case <-h.done:
	}
}

// Inspect runs fn inside the hub loop. fn must not retain the registry.
func (h *Hub) Inspect(ctx context.Context, fn func(*session.Registry)) error {
	finished := make(chan struct{})
	job := func(r *session.Registry) {
		defer close(finished)
		fn(r)
	}
	select {
	case h.inspect <- job:
	case <-h.done:
		return errors.New("hub is not running")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c.ID] = c
	metrics.Clients.Set(float64(len(h.clients)))
	h.log.Debug().Str("client", c.ID).Msg("client registered")
}

// disconnect removes the client from every session it joined and stops its
// write pump. Unknown or already removed clients are ignored.
func (h *Hub) disconnect(c *Client) {
	if cur, ok := h.clients[c.ID]; !ok || cur != c {
		return
	}
	delete(h.clients, c.ID)
	close(c.send)
	metrics.Clients.Set(float64(len(h.clients)))
	h.log.Debug().Str("client", c.ID).Msg("client unregistered")

	for _, d := range h.registry.LeaveAll(c.ID) {
		h.announceDeparture(d)
	}
}

func (h *Hub) handle(c *Client, msg *protocol.Message) {
	// frames read before an eviction may still be queued behind it
	if c.evicted || h.clients[c.ID] != c {
		h.drop(c, msg, errDisconnected)
		return
	}
	route, ok := h.routes[msg.Type]
	if !ok {
		metrics.Inbound.WithLabelValues("unknown").Inc()
		h.drop(c, msg, errUnknownType)
		return
	}
	metrics.Inbound.WithLabelValues(msg.Type).Inc()
	if err := route(c, msg); err != nil {
		h.drop(c, msg, err)
	}
}

// drop is the fail-silent path: nothing is sent back to the sender.
func (h *Hub) drop(c *Client, msg *protocol.Message, err error) {
	reason := session.Reason(err)
	switch {
	case errors.Is(err, protocol.ErrInvalidMessage):
		reason = "invalid"
	case errors.Is(err, errUnknownType):
		reason = "unknown_type"
	case errors.Is(err, errUnknownTarget):
		reason = "unknown_target"
	case errors.Is(err, errDisconnected):
		reason = "disconnected"
	}
	metrics.Dropped.WithLabelValues(reason).Inc()
	h.log.Debug().Err(err).Str("client", c.ID).Str("type", msg.Type).Str("reason", reason).Msg("message dropped")
}

// send queues msg without ever blocking the hub. A client whose buffer is
// full is evicted once the current message is done.
func (h *Hub) send(c *Client, msg *protocol.Message) {
	if c.evicted {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.evicted = true
		h.evict = append(h.evict, c)
		metrics.SlowClients.Inc()
		h.log.Warn().Str("client", c.ID).Msg("send buffer full, disconnecting")
	}
}

// sendTo reports false when id is not connected.
func (h *Hub) sendTo(id string, msg *protocol.Message) bool {
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	h.send(c, msg)
	return true
}

// broadcast sends msg to every listed member except the one with id except.
func (h *Hub) broadcast(users []session.User, msg *protocol.Message, except string) {
	for _, u := range users {
		if u.ID == except {
			continue
		}
		h.sendTo(u.ID, msg)
	}
}

func (h *Hub) flushEvictions() {
	for len(h.evict) > 0 {
		c := h.evict[0]
		h.evict = h.evict[1:]
		h.disconnect(c)
	}
}

func (h *Hub) newMessage(t string, payload any) *protocol.Message {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		// payloads are our own structs, this only fires on a programming error
		h.log.Error().Err(err).Str("type", t).Msg("encode failed")
		return &protocol.Message{Type: t}
	}
	return msg
}
