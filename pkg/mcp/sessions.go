package mcp

import "sync"

// SessionRegistry tracks the MCP sessions that have called a tool, so
// render and save progress can be pushed back to them. Session IDs are
// captured automatically on every tool call.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]struct{}
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]struct{})}
}

// Register records a session ID. Registering an already-known session
// is a no-op.
func (r *SessionRegistry) Register(sessionID string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = struct{}{}
}

// Sessions returns a snapshot of the registered session IDs.
func (r *SessionRegistry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for sid := range r.sessions {
		out = append(out, sid)
	}
	return out
}

// Remove forgets a session ID. Called when a push to the session
// reports it gone.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
