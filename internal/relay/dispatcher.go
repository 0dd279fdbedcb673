package relay

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/hallwayhq/hallway/internal/metrics"
)

// Dispatcher turns session lifecycle transitions and ephemeral signals
// (typing, presence, call invites) into outbound events. It holds no state of
// its own; presence truth lives in the registry and membership index.
type Dispatcher struct {
	registry    *Registry
	broadcaster Broadcaster
	log         zerolog.Logger
}

// NewDispatcher returns a dispatcher reading live session data from reg and
// fanning out through b.
func NewDispatcher(reg *Registry, b Broadcaster, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:    reg,
		broadcaster: b,
		log:         log.With().Str("component", "dispatcher").Logger(),
	}
}

// SessionOnline runs after a successful authentication: the new connection
// receives the online-users snapshot for its workspace (its own identity
// excluded), and if this is the identity's first connection the rest of the
// workspace learns it came online.
func (d *Dispatcher) SessionOnline(sess *Session, cameOnline bool) {
	snapshot := d.registry.OnlineIn(sess.WorkspaceID)
	others := make([]OnlineUser, 0, len(snapshot))
	for _, u := range snapshot {
		if u.IdentityID != sess.IdentityID {
			others = append(others, u)
		}
	}
	sess.Conn.Send(Outbound{Event: EventOnlineUsers, Data: others})

	if !cameOnline {
		return
	}
	d.broadcaster.Broadcast(WorkspaceGroup(sess.WorkspaceID), Outbound{
		Event: EventUserOnline,
		Data: UserOnlinePayload{
			IdentityID: sess.IdentityID,
			Identity:   sess.Identity,
			Timestamp:  time.Now().UnixMilli(),
		},
	}, sess.Conn)
}

// SessionOffline runs after a session is removed, on disconnect or sweep
// eviction. The offline broadcast only fires when the identity's last
// connection is gone.
func (d *Dispatcher) SessionOffline(sess *Session, wentOffline bool) {
	if !wentOffline {
		return
	}
	d.broadcaster.Broadcast(WorkspaceGroup(sess.WorkspaceID), Outbound{
		Event: EventUserOffline,
		Data: UserOfflinePayload{
			IdentityID: sess.IdentityID,
			Timestamp:  time.Now().UnixMilli(),
		},
	}, sess.Conn)
}

// Typing broadcasts a typing signal to the channel, excluding the sender.
func (d *Dispatcher) Typing(sess *Session, channelID string, isTyping bool) {
	d.broadcaster.Broadcast(ChannelGroup(channelID), Outbound{
		Event: EventUserTyping,
		Data: UserTypingPayload{
			IdentityID: sess.IdentityID,
			ChannelID:  channelID,
			IsTyping:   isTyping,
		},
	}, sess.Conn)
	metrics.SignalsDispatched.WithLabelValues("typing").Inc()
}

// PresenceChange broadcasts the sender's new status to its workspace,
// excluding the sender. The registry status has already been updated.
func (d *Dispatcher) PresenceChange(sess *Session, status string) {
	d.broadcaster.Broadcast(WorkspaceGroup(sess.WorkspaceID), Outbound{
		Event: EventPresenceChange,
		Data: PresenceChangePayload{
			IdentityID: sess.IdentityID,
			Status:     status,
			Timestamp:  time.Now().UnixMilli(),
		},
	}, sess.Conn)
	metrics.SignalsDispatched.WithLabelValues("presence").Inc()
}

// CallInvite delivers a call invitation to every connection of the target
// identity and nobody else.
func (d *Dispatcher) CallInvite(sess *Session, req VideoCallInvitePayload) {
	d.broadcaster.Broadcast(UserGroup(req.TargetIdentityID), Outbound{
		Event: EventVideoCallInvitation,
		Data: VideoCallInvitationPayload{
			FromIdentityID: sess.IdentityID,
			FromIdent:      sess.Identity,
			RoomReference:  req.RoomReference,
			Meeting:        req.Meeting,
			Timestamp:      time.Now().UnixMilli(),
		},
	}, nil)
	metrics.SignalsDispatched.WithLabelValues("call_invite").Inc()
	d.log.Debug().
		Str("from", sess.IdentityID).
		Str("to", req.TargetIdentityID).
		Msg("call invitation delivered")
}
