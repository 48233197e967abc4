package storage

import (
	"context"
	"sync"
)

// MemoryStore implements in-process storage. The persistent layer is the
// same map as the in-memory view, so Sync is a read-through no-op. Values
// are lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

// Get returns the value for key.
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	return value, ok
}

// Set stores the value for key.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete removes the key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Sync returns the current value; memory has no separate persisted layer.
func (m *MemoryStore) Sync(ctx context.Context, key string) (string, bool, error) {
	value, ok := m.Get(key)
	return value, ok, nil
}
