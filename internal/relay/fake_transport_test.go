package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeHub implements Broadcaster over in-memory groups, so the relay core is
// exercised without a real transport.
type fakeHub struct {
	mu     sync.Mutex
	groups map[string]map[*fakeConn]struct{}
}

func newFakeHub() *fakeHub {
	return &fakeHub{groups: make(map[string]map[*fakeConn]struct{})}
}

func (h *fakeHub) Broadcast(group string, ev Outbound, except Conn) {
	h.mu.Lock()
	members := make([]*fakeConn, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		if except != nil && c.id == except.ID() {
			continue
		}
		members = append(members, c)
	}
	h.mu.Unlock()

	for _, c := range members {
		c.record(ev)
	}
}

func (h *fakeHub) newConn(id string) *fakeConn {
	return &fakeConn{id: id, hub: h}
}

func (h *fakeHub) inGroup(group string, c *fakeConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.groups[group][c]
	return ok
}

type fakeConn struct {
	id  string
	hub *fakeHub

	mu     sync.Mutex
	events []Outbound
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Join(group string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	members, ok := c.hub.groups[group]
	if !ok {
		members = make(map[*fakeConn]struct{})
		c.hub.groups[group] = members
	}
	members[c] = struct{}{}
}

func (c *fakeConn) Leave(group string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	delete(c.hub.groups[group], c)
}

func (c *fakeConn) Send(ev Outbound) { c.record(ev) }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) record(ev Outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// received returns every recorded event with the given name.
func (c *fakeConn) received(event string) []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Outbound
	for _, ev := range c.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) countOf(event string) int { return len(c.received(event)) }

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// frame builds an inbound wire frame for HandleEvent.
func frame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Envelope{Event: event, Data: data})
	require.NoError(t, err)
	return raw
}
