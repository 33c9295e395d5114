package session

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyActive is returned when a conversation id already has a live
// session. Reconnecting to a live conversation is rejected, not merged: the
// second connection must close without disturbing the first.
var ErrAlreadyActive = errors.New("session: conversation already active")

// Registry maps conversation ids to live sessions. Safe for arbitrary
// concurrent register/lookup/unregister; sessions never share mutable state
// so no cross-session locking exists beyond the map itself.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register creates and stores a session for id. Fails with ErrAlreadyActive
// when a live session exists.
func (r *Registry) Register(id string, startedAt time.Time, cfg Config) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrAlreadyActive
	}
	s := New(id, startedAt, cfg)
	r.sessions[id] = s
	return s, nil
}

// Lookup returns the live session for id, if any.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Unregister removes id. Idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
