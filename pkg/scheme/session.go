package scheme

import (
	"context"
	"sync"
)

// Session tracks the signed-in user for a scheme instance.
type Session interface {
	// SetUser records the user payload.
	SetUser(user map[string]interface{})
	// User returns the recorded user payload, nil when signed out.
	User() map[string]interface{}
	// LoggedIn reports whether a user is recorded.
	LoggedIn() bool
	// Reset clears all session state.
	Reset(ctx context.Context)
}

// MemorySession is the default in-process Session implementation.
type MemorySession struct {
	mu   sync.RWMutex
	user map[string]interface{}
}

// NewMemorySession creates an empty in-process session.
func NewMemorySession() *MemorySession {
	return &MemorySession{}
}

// SetUser records the user payload.
func (m *MemorySession) SetUser(user map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
}

// User returns the recorded user payload.
func (m *MemorySession) User() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// LoggedIn reports whether a user is recorded.
func (m *MemorySession) LoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// Reset clears the session.
func (m *MemorySession) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
}
