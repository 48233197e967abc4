package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringStore implements OS keyring-backed storage. Each key is stored as
// a separate keyring entry under the configured service name.
type KeyringStore struct {
	service string

	mu     sync.Mutex
	values map[string]string
}

// NewKeyringStore creates a new keyring-backed store.
func NewKeyringStore(config *Config, appName string) (*KeyringStore, error) {
	service := config.KeyringService
	if service == "" {
		service = appName
	}
	if service == "" {
		return nil, fmt.Errorf("keyring_service is required for keyring storage")
	}

	return &KeyringStore{
		service: service,
		values:  make(map[string]string),
	}, nil
}

// Get returns the in-memory value for key.
func (k *KeyringStore) Get(key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	value, ok := k.values[key]
	return value, ok
}

// Set writes the value to memory and to the OS keyring.
func (k *KeyringStore) Set(ctx context.Context, key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("failed to store value in keyring: %w", err)
	}

	k.values[key] = value
	return nil
}

// Delete removes the key from memory and from the OS keyring.
func (k *KeyringStore) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Delete(k.service, key); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete value from keyring: %w", err)
	}

	delete(k.values, key)
	return nil
}

// Sync re-reads the keyring entry and reconciles the in-memory value.
func (k *KeyringStore) Sync(ctx context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	value, err := keyring.Get(k.service, key)
	if err == keyring.ErrNotFound {
		delete(k.values, key)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to retrieve value from keyring: %w", err)
	}

	k.values[key] = value
	return value, true, nil
}

// GetService returns the keyring service name.
func (k *KeyringStore) GetService() string {
	return k.service
}
