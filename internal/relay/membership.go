package relay

import "sync"

// Membership tracks which identities are online in each workspace. It counts
// live connections per identity, so an identity connected from two devices is
// online until the last device disconnects. It is mutated only through the
// session lifecycle (authenticate/teardown), never by message handling.
type Membership struct {
	mu         sync.RWMutex
	workspaces map[string]map[string]int
}

// NewMembership returns an empty membership index.
func NewMembership() *Membership {
	return &Membership{workspaces: make(map[string]map[string]int)}
}

// Join records one more live connection for an identity in a workspace and
// reports whether the identity just came online (no prior connections).
func (m *Membership) Join(workspaceID, identityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.workspaces[workspaceID]
	if !ok {
		ws = make(map[string]int)
		m.workspaces[workspaceID] = ws
	}
	ws[identityID]++
	return ws[identityID] == 1
}

// Leave records one fewer live connection for an identity and reports whether
// the identity just went offline (no connections remain). Calling Leave for
// an identity that is not present is a safe no-op.
func (m *Membership) Leave(workspaceID, identityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.workspaces[workspaceID]
	if !ok {
		return false
	}
	n, ok := ws[identityID]
	if !ok {
		return false
	}
	if n > 1 {
		ws[identityID] = n - 1
		return false
	}
	delete(ws, identityID)
	if len(ws) == 0 {
		delete(m.workspaces, workspaceID)
	}
	return true
}

// IsOnline reports whether an identity has at least one live connection in
// the workspace.
func (m *Membership) IsOnline(workspaceID, identityID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.workspaces[workspaceID]
	if !ok {
		return false
	}
	_, ok = ws[identityID]
	return ok
}

// Online returns the identity ids currently online in a workspace.
func (m *Membership) Online(workspaceID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.workspaces[workspaceID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(ws))
	for id := range ws {
		ids = append(ids, id)
	}
	return ids
}
