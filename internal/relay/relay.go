package relay

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/hallwayhq/hallway/internal/metrics"
)

// Relay is the core event handler: it reacts to connection lifecycle events
// and inbound frames delivered by the transport, and drives the registry,
// membership index, router and dispatcher. One Relay serves the whole
// process; all its state is in-memory.
type Relay struct {
	registry   *Registry
	membership *Membership
	router     *Router
	dispatcher *Dispatcher
	log        zerolog.Logger
}

// New wires up a relay that fans out through b.
func New(b Broadcaster, log zerolog.Logger) *Relay {
	reg := NewRegistry()
	return &Relay{
		registry:   reg,
		membership: NewMembership(),
		router:     NewRouter(b, log),
		dispatcher: NewDispatcher(reg, b, log),
		log:        log.With().Str("component", "relay").Logger(),
	}
}

// Registry exposes the session registry for status surfaces (health probe)
// and tests. Mutations still only happen through relay event handling.
func (r *Relay) Registry() *Registry { return r.registry }

// SessionCount returns the number of live authenticated sessions.
func (r *Relay) SessionCount() int { return r.registry.Size() }

// HandleOpen is called by the transport when a connection is accepted. The
// connection stays unauthenticated (and receives nothing) until its
// authenticate event arrives.
func (r *Relay) HandleOpen(c Conn) {
	r.log.Debug().Str("conn", c.ID()).Msg("connection opened")
}

// HandleClose is called by the transport when a connection closes for any
// reason. Closing a connection that never authenticated is a no-op.
func (r *Relay) HandleClose(c Conn) {
	r.teardown(c, "disconnect")
}

// HandleEvent processes one inbound frame from a connection. Events from a
// single connection arrive in order (a guarantee the transport provides);
// events from different connections may be handled concurrently.
func (r *Relay) HandleEvent(c Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.reject(c, "", ErrMalformedEvent)
		return
	}

	r.registry.Touch(c.ID(), time.Now())

	switch env.Event {
	case EventAuthenticate:
		r.handleAuthenticate(c, env.Data)
	case EventSendMessage:
		r.handleSendMessage(c, env.Data)
	case EventTypingStart:
		r.handleTyping(c, env.Data, true)
	case EventTypingStop:
		r.handleTyping(c, env.Data, false)
	case EventPresenceUpdate:
		r.handlePresenceUpdate(c, env.Data)
	case EventVideoCallInvite:
		r.handleCallInvite(c, env.Data)
	case EventJoinChannel:
		r.handleChannel(c, env.Data, true)
	case EventLeaveChannel:
		r.handleChannel(c, env.Data, false)
	default:
		r.reject(c, env.Event, ErrUnknownEvent)
	}
}

func (r *Relay) handleAuthenticate(c Conn, data json.RawMessage) {
	var req AuthenticatePayload
	if err := json.Unmarshal(data, &req); err != nil || req.IdentityID == "" || req.WorkspaceID == "" {
		c.Send(Outbound{Event: EventAuthError, Data: ErrorPayload{
			Event:   EventAuthenticate,
			Message: "identityId and workspaceId are required",
		}})
		metrics.EventErrors.WithLabelValues(EventAuthenticate).Inc()
		return
	}

	// Re-authentication rebinds the connection: the old session is torn down
	// first so the old workspace groups and presence are released instead of
	// silently leaking.
	if old, ok := r.registry.Lookup(c.ID()); ok {
		r.log.Warn().
			Str("conn", c.ID()).
			Str("old_identity", old.IdentityID).
			Str("new_identity", req.IdentityID).
			Msg("re-authentication; tearing down previous session")
		r.teardown(c, "rebind")
	}

	now := time.Now()
	sess := &Session{
		Conn:        c,
		IdentityID:  req.IdentityID,
		WorkspaceID: req.WorkspaceID,
		Identity:    req.Identity,
		Status:      StatusOnline,
		CreatedAt:   now,
		LastSeen:    now,
	}
	if err := r.registry.Add(sess); err != nil {
		// Only reachable if another session appeared for this connection
		// between teardown and Add, which ordered per-connection delivery
		// rules out. Surface it rather than silently overwrite.
		c.Send(Outbound{Event: EventAuthError, Data: ErrorPayload{
			Event:   EventAuthenticate,
			Message: err.Error(),
		}})
		return
	}

	c.Join(WorkspaceGroup(sess.WorkspaceID))
	c.Join(UserGroup(sess.IdentityID))
	cameOnline := r.membership.Join(sess.WorkspaceID, sess.IdentityID)
	r.dispatcher.SessionOnline(sess, cameOnline)

	metrics.Authentications.Inc()
	metrics.SessionsLive.Set(float64(r.registry.Size()))
	r.log.Info().
		Str("conn", c.ID()).
		Str("identity", sess.IdentityID).
		Str("workspace", sess.WorkspaceID).
		Bool("came_online", cameOnline).
		Msg("session authenticated")
}

func (r *Relay) handleSendMessage(c Conn, data json.RawMessage) {
	sess, ok := r.registry.Lookup(c.ID())
	if !ok {
		r.reject(c, EventSendMessage, ErrNotAuthenticated)
		return
	}

	var req SendMessagePayload
	if err := json.Unmarshal(data, &req); err != nil {
		r.reject(c, EventSendMessage, ErrMalformedEvent)
		return
	}
	if err := r.router.Route(sess, req); err != nil {
		r.reject(c, EventSendMessage, err)
	}
}

// Ephemeral signals from connections without a session are silently dropped:
// they are not actionable and the sender is not owed an error.

func (r *Relay) handleTyping(c Conn, data json.RawMessage, isTyping bool) {
	sess, ok := r.registry.Lookup(c.ID())
	if !ok {
		return
	}
	var req ChannelPayload
	if err := json.Unmarshal(data, &req); err != nil || req.ChannelID == "" {
		r.reject(c, EventTypingStart, ErrMalformedEvent)
		return
	}
	r.dispatcher.Typing(sess, req.ChannelID, isTyping)
}

func (r *Relay) handlePresenceUpdate(c Conn, data json.RawMessage) {
	var req PresencePayload
	if err := json.Unmarshal(data, &req); err != nil || req.Status == "" {
		if _, ok := r.registry.Lookup(c.ID()); ok {
			r.reject(c, EventPresenceUpdate, ErrMalformedEvent)
		}
		return
	}
	sess, ok := r.registry.UpdateStatus(c.ID(), req.Status)
	if !ok {
		return
	}
	r.dispatcher.PresenceChange(sess, req.Status)
}

func (r *Relay) handleCallInvite(c Conn, data json.RawMessage) {
	sess, ok := r.registry.Lookup(c.ID())
	if !ok {
		return
	}
	var req VideoCallInvitePayload
	if err := json.Unmarshal(data, &req); err != nil || req.TargetIdentityID == "" {
		r.reject(c, EventVideoCallInvite, ErrMalformedEvent)
		return
	}
	r.dispatcher.CallInvite(sess, req)
}

func (r *Relay) handleChannel(c Conn, data json.RawMessage, join bool) {
	if _, ok := r.registry.Lookup(c.ID()); !ok {
		return
	}
	var req ChannelPayload
	if err := json.Unmarshal(data, &req); err != nil || req.ChannelID == "" {
		r.reject(c, EventJoinChannel, ErrMalformedEvent)
		return
	}
	if join {
		c.Join(ChannelGroup(req.ChannelID))
		r.registry.TrackChannel(c.ID(), req.ChannelID)
	} else {
		c.Leave(ChannelGroup(req.ChannelID))
		r.registry.UntrackChannel(c.ID(), req.ChannelID)
	}
}

// teardown is the single exit path for a session, shared by disconnect,
// sweep eviction and re-authentication. It is idempotent per connection:
// whichever caller loses the registry Remove race does nothing further.
func (r *Relay) teardown(c Conn, reason string) {
	sess, ok := r.registry.Remove(c.ID())
	if !ok {
		return
	}

	c.Leave(WorkspaceGroup(sess.WorkspaceID))
	c.Leave(UserGroup(sess.IdentityID))
	for _, ch := range sess.JoinedChannels() {
		c.Leave(ChannelGroup(ch))
	}

	wentOffline := r.membership.Leave(sess.WorkspaceID, sess.IdentityID)
	r.dispatcher.SessionOffline(sess, wentOffline)

	metrics.SessionsLive.Set(float64(r.registry.Size()))
	r.log.Info().
		Str("conn", c.ID()).
		Str("identity", sess.IdentityID).
		Str("workspace", sess.WorkspaceID).
		Str("reason", reason).
		Bool("went_offline", wentOffline).
		Msg("session removed")
}

// EvictIdle removes every session whose last activity is older than ttl and
// closes its connection. It iterates a snapshot so live authenticate and
// disconnect traffic is never blocked for the duration of a sweep. Returns
// the number of sessions evicted.
func (r *Relay) EvictIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	evicted := 0
	for _, sess := range r.registry.IdleSince(cutoff) {
		r.log.Warn().
			Str("conn", sess.Conn.ID()).
			Str("identity", sess.IdentityID).
			Time("last_seen", sess.LastSeen).
			Msg("evicting stale session")
		r.teardown(sess.Conn, "swept")
		_ = sess.Conn.Close()
		evicted++
	}
	if evicted > 0 {
		metrics.SessionsEvicted.Add(float64(evicted))
	}
	return evicted
}

// reject surfaces an error to the offending connection only. Errors are
// per-connection and local; they never affect another connection's state.
func (r *Relay) reject(c Conn, event string, err error) {
	c.Send(Outbound{Event: EventError, Data: ErrorPayload{Event: event, Message: err.Error()}})
	label := event
	if label == "" {
		label = "invalid"
	}
	metrics.EventErrors.WithLabelValues(label).Inc()
}
