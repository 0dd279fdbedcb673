package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hallwayhq/hallway/internal/relay"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// deadline fires. Pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// sendBuffer is the per-connection outbound queue; a client that lets it
	// fill up is dropped as a slow consumer.
	sendBuffer = 256
)

// Client is one WebSocket connection. It implements relay.Conn, so the relay
// core can join it to groups, send it events, and close it, without knowing
// anything about WebSockets.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	addr string
	send chan []byte
	log  zerolog.Logger

	// closed is guarded by the hub mutex; it marks the send channel as
	// closed so no goroutine writes to it afterwards.
	closed bool

	limiter *rateLimiter
}

// newClient wraps an upgraded connection. The connection id is opaque and
// never reused while the connection lives.
func newClient(conn *websocket.Conn, hub *Hub, addr string, maxMessageSize int64, limiter *rateLimiter, log zerolog.Logger) *Client {
	id := uuid.NewString()
	conn.SetReadLimit(maxMessageSize)
	return &Client{
		id:      id,
		conn:    conn,
		hub:     hub,
		addr:    addr,
		send:    make(chan []byte, sendBuffer),
		log:     log.With().Str("conn", id).Str("addr", addr).Logger(),
		limiter: limiter,
	}
}

// ID implements relay.Conn.
func (c *Client) ID() string { return c.id }

// Join implements relay.Conn.
func (c *Client) Join(group string) { c.hub.join(group, c) }

// Leave implements relay.Conn.
func (c *Client) Leave(group string) { c.hub.leave(group, c) }

// Send implements relay.Conn. It never blocks; a connection that cannot keep
// up is dropped by the hub.
func (c *Client) Send(ev relay.Outbound) {
	frame, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Str("event", ev.Event).Msg("failed to encode outbound event")
		return
	}
	c.hub.deliver(c, frame)
}

// Close implements relay.Conn. Closing the socket terminates both pumps,
// which report the disconnect back through the hub.
func (c *Client) Close() error { return c.conn.Close() }

// readPump reads frames until the connection errors or closes, handing each
// one to the relay. It runs on its own goroutine; exiting unregisters the
// client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if c.limiter != nil && !c.limiter.allow() {
			c.log.Warn().Msg("rate limit exceeded; discarding frame")
			continue
		}

		c.hub.relay.HandleEvent(c, frame)
	}
}

// logReadError keeps expected disconnects quiet and surfaces the rest.
func (c *Client) logReadError(err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Msg("client disconnected")
	case isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// writePump writes queued frames and keepalive pings until the send channel
// closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn().Err(err).Msg("websocket write error")
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// isExpectedCloseError checks for the error strings the net stack produces
// during ordinary connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
