package session

import "sync"

// Registry tracks the live Machine of each attempt on this instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Machine
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Machine)}
}

// Register claims attemptID for m. It fails with ErrSessionBusy when another
// machine holds it.
func (r *Registry) Register(attemptID int64, m *Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[attemptID]; ok && cur != m {
		return ErrSessionBusy
	}
	r.sessions[attemptID] = m
	return nil
}

// Unregister releases attemptID if m still holds it.
func (r *Registry) Unregister(attemptID int64, m *Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[attemptID]; ok && cur == m {
		delete(r.sessions, attemptID)
	}
}

// Get returns the live machine for attemptID.
func (r *Registry) Get(attemptID int64) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[attemptID]
	return m, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes and forgets every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[int64]*Machine)
	r.mu.Unlock()

	for _, m := range sessions {
		m.Close()
	}
}
