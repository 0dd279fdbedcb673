// Package relay implements the connection/session registry and room-based
// fanout engine for Hallway. It binds transient connections to authenticated
// identities, routes messages to the correct broadcast groups based on their
// declared scope, and keeps workspace presence consistent as connections
// churn. The package has no transport dependencies; it talks to the outside
// world through the Conn and Broadcaster interfaces in transport.go.
package relay

import (
	"encoding/json"
)

// Inbound event names, as sent by clients.
const (
	EventAuthenticate    = "authenticate"
	EventSendMessage     = "send-message"
	EventTypingStart     = "typing-start"
	EventTypingStop      = "typing-stop"
	EventPresenceUpdate  = "presence-update"
	EventVideoCallInvite = "video-call-invite"
	EventJoinChannel     = "join-channel"
	EventLeaveChannel    = "leave-channel"
)

// Outbound event names, as delivered to clients.
const (
	EventAuthError           = "auth-error"
	EventOnlineUsers         = "online-users"
	EventUserOnline          = "user-online"
	EventUserOffline         = "user-offline"
	EventNewMessage          = "new-message"
	EventMessageSent         = "message-sent"
	EventError               = "error"
	EventUserTyping          = "user-typing"
	EventPresenceChange      = "presence-change"
	EventVideoCallInvitation = "video-call-invitation"
)

// Envelope is the framed unit received from a client: an event name plus an
// event-specific payload that is decoded lazily by the handler for that event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is an event on its way to one or more clients. Data is marshaled
// by the transport when the frame is written.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// AuthenticatePayload carries the identity claim for a connection. The claim
// is trusted as-is; verifying it belongs to an upstream auth layer.
type AuthenticatePayload struct {
	IdentityID  string          `json:"identityId"`
	WorkspaceID string          `json:"workspaceId"`
	Identity    json.RawMessage `json:"identity,omitempty"`
}

// Message scopes. Any scope other than workspace or direct is treated as a
// named channel and requires a channel id.
const (
	ScopeWorkspace = "workspace"
	ScopeDirect    = "direct"
	ScopeChannel   = "channel"
)

// SendMessagePayload is a client's request to fan a message out. Payload is
// an opaque blob of sender-supplied fields; the relay never inspects it.
type SendMessagePayload struct {
	Scope      string          `json:"scope"`
	ChannelID  string          `json:"channelId,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ChannelPayload names a channel for typing signals and channel membership.
type ChannelPayload struct {
	ChannelID string `json:"channelId"`
}

// PresencePayload carries a presence status change ("online", "away", ...).
type PresencePayload struct {
	Status string `json:"status"`
}

// VideoCallInvitePayload asks the relay to deliver a call invitation to a
// single target identity.
type VideoCallInvitePayload struct {
	TargetIdentityID string          `json:"targetIdentityId"`
	RoomReference    string          `json:"roomReference"`
	Meeting          json.RawMessage `json:"meeting,omitempty"`
}

// ErrorPayload is sent back on the offending connection only.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// NewMessagePayload is the fanned-out form of a message. Sender fields are
// always populated server-side from the session, never from client input.
type NewMessagePayload struct {
	ID          string          `json:"id"`
	From        string          `json:"from"`
	FromIdent   json.RawMessage `json:"fromIdentity,omitempty"`
	WorkspaceID string          `json:"workspaceId"`
	Scope       string          `json:"scope"`
	ChannelID   string          `json:"channelId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   int64           `json:"ts"`
}

// MessageSentPayload acknowledges acceptance and fanout to the sender.
// "delivered" means accepted and fanned out, not received by any recipient.
type MessageSentPayload struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// OnlineUser is one entry in the online-users snapshot.
type OnlineUser struct {
	IdentityID string          `json:"identityId"`
	Identity   json.RawMessage `json:"identity,omitempty"`
	Status     string          `json:"status"`
}

// UserOnlinePayload announces an identity's first live connection.
type UserOnlinePayload struct {
	IdentityID string          `json:"identityId"`
	Identity   json.RawMessage `json:"identity,omitempty"`
	Timestamp  int64           `json:"ts"`
}

// UserOfflinePayload announces that an identity's last connection closed.
type UserOfflinePayload struct {
	IdentityID string `json:"identityId"`
	Timestamp  int64  `json:"ts"`
}

// UserTypingPayload signals typing state on a channel.
type UserTypingPayload struct {
	IdentityID string `json:"identityId"`
	ChannelID  string `json:"channelId"`
	IsTyping   bool   `json:"isTyping"`
}

// PresenceChangePayload broadcasts a status change to the workspace.
type PresenceChangePayload struct {
	IdentityID string `json:"identityId"`
	Status     string `json:"status"`
	Timestamp  int64  `json:"ts"`
}

// VideoCallInvitationPayload is the unicast delivery of a call invite.
type VideoCallInvitationPayload struct {
	FromIdentityID string          `json:"fromIdentityId"`
	FromIdent      json.RawMessage `json:"fromIdentity,omitempty"`
	RoomReference  string          `json:"roomReference"`
	Meeting        json.RawMessage `json:"meeting,omitempty"`
	Timestamp      int64           `json:"ts"`
}
