// Package server realizes the connection event source for the relay core:
// WebSocket upgrades, per-connection read/write pumps, and the hub that owns
// the connection set and named broadcast groups.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hallwayhq/hallway/internal/metrics"
	"github.com/hallwayhq/hallway/internal/relay"
)

// Hub supervises all live WebSocket connections and implements the relay's
// Broadcaster seam. It maintains client registration and named group
// membership, with all shared maps guarded by one mutex.
type Hub struct {
	log   zerolog.Logger
	relay *relay.Relay

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	groups   map[string]map[*Client]struct{}
	shutdown bool

	wg sync.WaitGroup
}

// NewHub creates a hub with no clients. Bind must be called before the first
// connection is registered.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "hub").Logger(),
		clients: make(map[*Client]struct{}),
		groups:  make(map[string]map[*Client]struct{}),
	}
}

// Bind attaches the relay that receives connection lifecycle events and
// inbound frames. Separate from NewHub because the relay itself broadcasts
// through the hub.
func (h *Hub) Bind(r *relay.Relay) { h.relay = r }

// register adds a client and starts its pumps. Rejected if the hub is
// shutting down.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Str("conn", c.id).Str("addr", c.addr).Int("total", total).Msg("client registered")
	metrics.ConnectionsOpened.Inc()

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()

	h.relay.HandleOpen(c)
	return true
}

// unregister removes a client from the connection set and every group, and
// closes its send channel exactly once. Safe to call more than once per
// client; the relay teardown behind HandleClose is itself idempotent.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.closed = true
		for group, members := range h.groups {
			delete(members, c)
			if len(members) == 0 {
				delete(h.groups, group)
			}
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(c.send)
	h.log.Debug().Str("conn", c.id).Int("total", total).Msg("client unregistered")
	h.relay.HandleClose(c)
}

// join adds a client to a named group, creating the group lazily.
func (h *Hub) join(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[*Client]struct{})
		h.groups[group] = members
	}
	members[c] = struct{}{}
}

// leave removes a client from a named group. Safe for unknown groups.
func (h *Hub) leave(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Broadcast fans one event out to every member of a group, excluding at most
// one connection. Clients whose send buffer is full are dropped afterwards.
func (h *Hub) Broadcast(group string, ev relay.Outbound, except relay.Conn) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Event).Msg("failed to encode outbound event")
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		if except != nil && c.id == except.ID() {
			continue
		}
		members = append(members, c)
	}
	h.mu.RUnlock()

	var stalled []*Client
	for _, c := range members {
		if !h.trySend(c, frame) {
			stalled = append(stalled, c)
		}
	}
	h.dropSlow(stalled)
}

// deliver queues a frame for a single client, dropping the client if it
// cannot keep up.
func (h *Hub) deliver(c *Client, frame []byte) {
	if !h.trySend(c, frame) {
		h.dropSlow([]*Client{c})
	}
}

// trySend queues a frame without blocking. The lock is held across the send
// so the channel cannot be closed mid-operation by a concurrent unregister.
func (h *Hub) trySend(c *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok || c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// dropSlow disconnects clients that failed to accept a frame. Closing the
// socket makes the read pump exit, which funnels through unregister and the
// relay's normal teardown.
func (h *Hub) dropSlow(clients []*Client) {
	for _, c := range clients {
		h.log.Warn().Str("conn", c.id).Str("addr", c.addr).Msg("dropping slow consumer")
		metrics.SlowConsumersDropped.Inc()
		_ = c.conn.Close()
	}
}

// Shutdown stops accepting registrations, closes every connection, and waits
// for all pump goroutines to finish or the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.shutdown = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.log.Info().Int("clients", len(clients)).Msg("closing client connections")
	for _, c := range clients {
		_ = c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timed out; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
