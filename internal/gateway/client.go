package gateway

import (
	"errors"
	"time"

	"github.com/ernestchu/christmas-tree/internal/metrics"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is a wrapper for a single websocket connection. Its ID doubles as
// the user id in every session the connection joins.
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn

	// send is a buffered channel for all outbound messages. The hub writes
	// to it and WritePump drains it. Only the hub closes it.
	send chan *protocol.Message

	// evicted is owned by the hub goroutine.
	evicted bool

	log zerolog.Logger
}

// NewClient wraps an upgraded connection with a fresh connection id.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan *protocol.Message, hub.cfg.SendBuffer),
		log:  hub.log.With().Str("client", id).Logger(),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			// a malformed frame costs the sender that frame, not the connection
			metrics.Dropped.WithLabelValues("invalid").Inc()
			c.log.Debug().Err(err).Msg("malformed frame")
			continue
		}
		c.hub.Dispatch(c, msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame, err := msg.Frame()
			if err != nil {
				metrics.Dropped.WithLabelValues("invalid").Inc()
				c.log.Error().Err(err).Str("type", msg.Type).Msg("encode failed")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Debug().Err(err).Msg("write failed")
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
