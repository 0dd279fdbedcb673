// Package testhelpers provides shared utilities for the integration tests:
// dialing the relay over a real WebSocket and exchanging framed events.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Envelope mirrors the wire frame exchanged with the relay.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocketURL converts an httptest server URL to the ws:// endpoint.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// Dial opens a WebSocket connection with a test origin header.
func Dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err, "websocket dial failed")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// TryDial attempts a connection and returns the error instead of failing,
// for tests asserting that an upgrade is refused.
func TryDial(url string, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent writes one framed event.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: data}))
}

// ReadEvent reads the next framed event, failing the test after a timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env), "expected an event before the read deadline")
	return env
}

// ExpectEvent reads the next event and asserts its name, returning the
// decoded payload in out when out is non-nil.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string, out any) {
	t.Helper()

	env := ReadEvent(t, conn)
	require.Equal(t, event, env.Event, "unexpected event")
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

// ExpectSilence asserts that no event arrives within the window.
func ExpectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	var env Envelope
	err := conn.ReadJSON(&env)
	require.Error(t, err, "expected no event, got %q", env.Event)
}

// Authenticate sends the authenticate event and consumes the online-users
// snapshot, returning the identity ids it contained.
func Authenticate(t *testing.T, conn *websocket.Conn, identityID, workspaceID string) []string {
	t.Helper()

	SendEvent(t, conn, "authenticate", map[string]string{
		"identityId":  identityID,
		"workspaceId": workspaceID,
	})

	var users []struct {
		IdentityID string `json:"identityId"`
	}
	ExpectEvent(t, conn, "online-users", &users)

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.IdentityID)
	}
	return ids
}
