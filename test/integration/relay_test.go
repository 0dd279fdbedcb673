// Package integration exercises the relay end to end over real WebSocket
// connections: authentication, presence announcements, message fanout, and
// the health surface.
package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallwayhq/hallway/internal/config"
	"github.com/hallwayhq/hallway/internal/relay"
	"github.com/hallwayhq/hallway/internal/server"
	"github.com/hallwayhq/hallway/test/testhelpers"
)

func startRelayServer(t *testing.T, origins []string) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Port:            "0",
		Env:             "test",
		AllowedOrigins:  origins,
		MaxMessageSize:  4096,
		RateLimitBurst:  100,
		RateLimitRefill: time.Second,
	}

	logger := zerolog.Nop()
	hub := server.NewHub(logger)
	rel := relay.New(hub, logger)
	hub.Bind(rel)

	ts := httptest.NewServer(server.NewRouter(logger, hub, rel, cfg))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return ts
}

func TestPresenceLifecycle(t *testing.T) {
	ts := startRelayServer(t, []string{"*"})
	url := testhelpers.WebSocketURL(ts.URL)

	u1 := testhelpers.Dial(t, url)
	ids := testhelpers.Authenticate(t, u1, "u1", "w1")
	assert.Empty(t, ids, "first identity sees an empty workspace")

	u2 := testhelpers.Dial(t, url)
	ids = testhelpers.Authenticate(t, u2, "u2", "w1")
	assert.Equal(t, []string{"u1"}, ids)

	var online struct {
		IdentityID string `json:"identityId"`
	}
	testhelpers.ExpectEvent(t, u1, "user-online", &online)
	assert.Equal(t, "u2", online.IdentityID)

	require.NoError(t, u1.Close())

	var offline struct {
		IdentityID string `json:"identityId"`
	}
	testhelpers.ExpectEvent(t, u2, "user-offline", &offline)
	assert.Equal(t, "u1", offline.IdentityID)
}

func TestWorkspaceMessageDelivery(t *testing.T) {
	ts := startRelayServer(t, []string{"*"})
	url := testhelpers.WebSocketURL(ts.URL)

	sender := testhelpers.Dial(t, url)
	testhelpers.Authenticate(t, sender, "u1", "w1")

	receiver := testhelpers.Dial(t, url)
	testhelpers.Authenticate(t, receiver, "u2", "w1")
	testhelpers.ExpectEvent(t, sender, "user-online", nil)

	outsider := testhelpers.Dial(t, url)
	testhelpers.Authenticate(t, outsider, "u3", "w2")

	testhelpers.SendEvent(t, sender, "send-message", map[string]any{
		"scope":   "workspace",
		"payload": map[string]string{"text": "hello"},
	})

	var ack struct {
		MessageID string `json:"messageId"`
		Status    string `json:"status"`
	}
	testhelpers.ExpectEvent(t, sender, "message-sent", &ack)
	assert.Equal(t, "delivered", ack.Status)
	assert.NotEmpty(t, ack.MessageID)

	var msg struct {
		ID      string          `json:"id"`
		From    string          `json:"from"`
		Payload json.RawMessage `json:"payload"`
	}
	testhelpers.ExpectEvent(t, receiver, "new-message", &msg)
	assert.Equal(t, ack.MessageID, msg.ID)
	assert.Equal(t, "u1", msg.From)
	assert.JSONEq(t, `{"text":"hello"}`, string(msg.Payload))

	testhelpers.ExpectSilence(t, outsider, 300*time.Millisecond)
}

func TestDirectMessageDelivery(t *testing.T) {
	ts := startRelayServer(t, []string{"*"})
	url := testhelpers.WebSocketURL(ts.URL)

	sender := testhelpers.Dial(t, url)
	testhelpers.Authenticate(t, sender, "u1", "w1")

	target := testhelpers.Dial(t, url)
	testhelpers.Authenticate(t, target, "u2", "w1")
	testhelpers.ExpectEvent(t, sender, "user-online", nil)

	bystander := testhelpers.Dial(t, url)
	testhelpers.Authenticate(t, bystander, "u3", "w1")
	testhelpers.ExpectEvent(t, sender, "user-online", nil)
	testhelpers.ExpectEvent(t, target, "user-online", nil)

	testhelpers.SendEvent(t, sender, "send-message", map[string]any{
		"scope":      "direct",
		"recipients": []string{"u2"},
		"payload":    map[string]string{"text": "psst"},
	})

	testhelpers.ExpectEvent(t, sender, "message-sent", nil)

	var msg struct {
		From string `json:"from"`
	}
	testhelpers.ExpectEvent(t, target, "new-message", &msg)
	assert.Equal(t, "u1", msg.From)

	testhelpers.ExpectSilence(t, bystander, 300*time.Millisecond)
}

func TestSendWithoutAuthenticationIsRejected(t *testing.T) {
	ts := startRelayServer(t, []string{"*"})
	url := testhelpers.WebSocketURL(ts.URL)

	conn := testhelpers.Dial(t, url)
	testhelpers.SendEvent(t, conn, "send-message", map[string]any{"scope": "workspace"})

	var errPayload struct {
		Message string `json:"message"`
	}
	testhelpers.ExpectEvent(t, conn, "error", &errPayload)
	assert.Contains(t, errPayload.Message, "not authenticated")
}

func TestUpgradeBlockedForDisallowedOrigin(t *testing.T) {
	ts := startRelayServer(t, []string{"http://localhost:8080"})
	url := testhelpers.WebSocketURL(ts.URL)

	conn, err := testhelpers.TryDial(url, "http://evil.example.com")
	if conn != nil {
		_ = conn.Close()
	}
	assert.Error(t, err, "upgrade should be refused")
}

func TestHealthReportsSessionCount(t *testing.T) {
	ts := startRelayServer(t, []string{"*"})
	url := testhelpers.WebSocketURL(ts.URL)

	conn := testhelpers.Dial(t, url)
	testhelpers.Authenticate(t, conn, "u1", "w1")

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Sessions)
}
