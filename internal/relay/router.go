package relay

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hallwayhq/hallway/internal/metrics"
)

// Router computes the fanout target for an outbound message from its declared
// scope and performs the fanout. It is stateless; the session supplies every
// trusted field.
type Router struct {
	broadcaster Broadcaster
	log         zerolog.Logger
}

// NewRouter returns a router that fans out through b.
func NewRouter(b Broadcaster, log zerolog.Logger) *Router {
	return &Router{broadcaster: b, log: log.With().Str("component", "router").Logger()}
}

// Route validates the request, builds the wire message with server-side
// sender fields, fans it out per scope and acknowledges the sender. The
// returned error is ErrMalformedEvent (wrapped) when required fields are
// missing; the caller surfaces it to the sender only.
func (rt *Router) Route(sess *Session, req SendMessagePayload) error {
	scope, err := validateScope(req)
	if err != nil {
		return err
	}

	msg := NewMessagePayload{
		ID:          ulid.Make().String(),
		From:        sess.IdentityID,
		FromIdent:   sess.Identity,
		WorkspaceID: sess.WorkspaceID,
		Scope:       req.Scope,
		ChannelID:   req.ChannelID,
		Payload:     req.Payload,
		Timestamp:   time.Now().UnixMilli(),
	}
	ev := Outbound{Event: EventNewMessage, Data: msg}

	switch scope {
	case ScopeWorkspace:
		// Workspace id comes from the session, never from client input.
		rt.broadcaster.Broadcast(WorkspaceGroup(sess.WorkspaceID), ev, sess.Conn)

	case ScopeDirect:
		for _, recipient := range req.Recipients {
			rt.broadcaster.Broadcast(UserGroup(recipient), ev, nil)
		}

	case ScopeChannel:
		rt.broadcaster.Broadcast(ChannelGroup(req.ChannelID), ev, sess.Conn)
	}

	metrics.MessagesRouted.WithLabelValues(scope).Inc()
	rt.log.Debug().
		Str("message_id", msg.ID).
		Str("from", sess.IdentityID).
		Str("scope", req.Scope).
		Msg("message fanned out")

	// "delivered" acknowledges acceptance and fanout only; no end-to-end
	// receipt is tracked.
	sess.Conn.Send(Outbound{
		Event: EventMessageSent,
		Data:  MessageSentPayload{MessageID: msg.ID, Status: "delivered"},
	})
	return nil
}

// validateScope maps the declared scope to a fanout class and checks the
// fields that class requires. Unknown scopes are named channels.
func validateScope(req SendMessagePayload) (string, error) {
	switch req.Scope {
	case "":
		return "", fmt.Errorf("%w: scope is required", ErrMalformedEvent)
	case ScopeWorkspace:
		return ScopeWorkspace, nil
	case ScopeDirect:
		if len(req.Recipients) == 0 {
			return "", fmt.Errorf("%w: direct message requires recipients", ErrMalformedEvent)
		}
		return ScopeDirect, nil
	default:
		if req.ChannelID == "" {
			return "", fmt.Errorf("%w: channel message requires channelId", ErrMalformedEvent)
		}
		return ScopeChannel, nil
	}
}
