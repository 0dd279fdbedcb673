package relay

import (
	"encoding/json"
	"sync"
	"time"
)

// StatusOnline is the presence status assigned to a fresh session.
const StatusOnline = "online"

// Session binds a live connection to its authenticated identity and
// workspace. A connection has at most one Session at any time; a Session
// exists iff its connection is open and has completed authentication.
//
// Conn, IdentityID, WorkspaceID and Identity are immutable after creation.
// Status, LastSeen and the channel set are mutated only through Registry
// methods, under the registry lock.
type Session struct {
	Conn        Conn
	IdentityID  string
	WorkspaceID string
	Identity    json.RawMessage
	Status      string
	CreatedAt   time.Time
	LastSeen    time.Time

	channels map[string]struct{}
}

// JoinedChannels returns the channel ids this session's connection has
// joined, in no particular order.
func (s *Session) JoinedChannels() []string {
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

// Registry owns every live Session, keyed by connection id. All access goes
// through its methods; there is no other path to session state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry ready for use.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add stores a new session for its connection. It fails with
// ErrAlreadyAuthenticated if the connection already holds one; callers that
// want replace semantics must remove the old session first.
func (r *Registry) Add(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sess.Conn.ID()]; ok {
		return ErrAlreadyAuthenticated
	}
	if sess.Status == "" {
		sess.Status = StatusOnline
	}
	if sess.channels == nil {
		sess.channels = make(map[string]struct{})
	}
	r.sessions[sess.Conn.ID()] = sess
	return nil
}

// Lookup resolves a connection id to its session, if any.
func (r *Registry) Lookup(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	return sess, ok
}

// Remove deletes and returns the session for a connection. It is idempotent:
// the second caller for the same connection observes not-found, which is how
// racing teardown paths (disconnect vs sweep) avoid double work.
func (r *Registry) Remove(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, connID)
	return sess, true
}

// Touch records activity on a connection so the sweeper sees it as live.
// No-op for connections without a session.
func (r *Registry) Touch(connID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[connID]; ok {
		sess.LastSeen = now
	}
}

// UpdateStatus sets the presence status on a connection's session and
// returns it. A missing session is reported via ok=false; presence updates
// from stale or unauthenticated connections are not actionable.
func (r *Registry) UpdateStatus(connID, status string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	sess.Status = status
	return sess, true
}

// TrackChannel remembers that a connection joined a channel, so the
// membership can be released if the session is rebound before disconnect.
func (r *Registry) TrackChannel(connID, channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return false
	}
	sess.channels[channelID] = struct{}{}
	return true
}

// UntrackChannel forgets a channel previously tracked for a connection.
func (r *Registry) UntrackChannel(connID, channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return false
	}
	delete(sess.channels, channelID)
	return true
}

// Size returns the number of live sessions.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// IdleSince returns a snapshot of the sessions whose last activity is at or
// before cutoff. The sweeper iterates this snapshot instead of holding the
// registry lock for the duration of a sweep.
func (r *Registry) IdleSince(cutoff time.Time) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, sess := range r.sessions {
		if !sess.LastSeen.After(cutoff) {
			out = append(out, sess)
		}
	}
	return out
}

// OnlineIn builds the online-users snapshot for a workspace from live
// session data at call time. Identities with several connections appear
// once, represented by whichever session is seen first.
func (r *Registry) OnlineIn(workspaceID string) []OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	users := make([]OnlineUser, 0)
	for _, sess := range r.sessions {
		if sess.WorkspaceID != workspaceID {
			continue
		}
		if _, dup := seen[sess.IdentityID]; dup {
			continue
		}
		seen[sess.IdentityID] = struct{}{}
		users = append(users, OnlineUser{
			IdentityID: sess.IdentityID,
			Identity:   sess.Identity,
			Status:     sess.Status,
		})
	}
	return users
}
