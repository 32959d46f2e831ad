package overlay

import (
	"fmt"
	"sync"
)

// Registry tracks active overlay sessions by key. It is an explicit object
// passed by reference at construction — there is no process-wide registry,
// so tests instantiate a private one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session under key. Duplicate keys are an error.
func (r *Registry) Add(key string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[key]; exists {
		return fmt.Errorf("overlay: session %q already registered", key)
	}
	r.sessions[key] = s
	return nil
}

// Get returns the session registered under key, or nil.
func (r *Registry) Get(key string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[key]
}

// Remove unregisters the session under key and returns it (nil if absent).
// The caller is responsible for shutting it down.
func (r *Registry) Remove(key string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[key]
	delete(r.sessions, key)
	return s
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ShutdownAll shuts down and removes every session.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Shutdown()
	}
}
