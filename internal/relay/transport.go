package relay

// Conn is one live client connection as seen by the relay core. The transport
// owns the underlying socket; the relay only joins it to named groups, sends
// framed events, and closes it when evicting a stale session.
type Conn interface {
	// ID returns an opaque identifier that is stable for the lifetime of the
	// connection and never reused while the connection is open.
	ID() string

	// Join adds the connection to a named broadcast group. Idempotent.
	Join(group string)

	// Leave removes the connection from a named broadcast group. Safe to call
	// for groups the connection never joined.
	Leave(group string)

	// Send queues an event for delivery on this connection only. It must not
	// block; a transport may drop the event (and the connection) if the
	// client cannot keep up.
	Send(ev Outbound)

	// Close tears down the underlying connection. The transport is expected
	// to report the closure back through the usual disconnect path, which is
	// idempotent with any teardown already performed.
	Close() error
}

// Broadcaster fans an event out to every connection currently in a named
// group, optionally excluding one connection (typically the sender).
type Broadcaster interface {
	Broadcast(group string, ev Outbound, except Conn)
}

// Broadcast group names are derived deterministically; groups have no
// independent lifecycle beyond the connections joined to them.

// WorkspaceGroup names the group holding every connection in a workspace.
func WorkspaceGroup(workspaceID string) string { return "workspace:" + workspaceID }

// UserGroup names the group holding every connection of one identity.
func UserGroup(identityID string) string { return "user:" + identityID }

// ChannelGroup names the group for a channel within a workspace.
func ChannelGroup(channelID string) string { return "channel:" + channelID }
