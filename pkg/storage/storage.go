// Package storage provides universal key-value storage for credential state.
//
// A Store keeps a fast in-memory view of every key alongside an
// authoritative persisted copy. Get and Set operate on both layers;
// Sync re-reads the persisted copy into memory and is meant to be called
// once per process lifecycle per key, before the first Get, so that state
// written by another process (or a previous run) is picked up.
package storage

import (
	"context"
	"fmt"
)

// Store is a universal key-value store with an explicit reconciliation step.
type Store interface {
	// Get returns the in-memory value for key. The second return value is
	// false when the key has never been set (and never synced to a value).
	Get(key string) (string, bool)

	// Set writes the value to memory and to the persistent layer.
	Set(ctx context.Context, key, value string) error

	// Delete removes the key from memory and from the persistent layer.
	Delete(ctx context.Context, key string) error

	// Sync reconciles the in-memory value with the persisted one and
	// returns the result. A missing persisted key clears the memory entry.
	Sync(ctx context.Context, key string) (string, bool, error)
}

// Type identifies a storage backend.
type Type string

const (
	// TypeMemory keeps values in-process only.
	TypeMemory Type = "memory"
	// TypeFile persists values to a JSON file in an XDG-compliant location.
	TypeFile Type = "file"
	// TypeKeyring persists values in the OS keyring.
	TypeKeyring Type = "keyring"
	// TypeRedis persists values in a redis instance shared across processes.
	TypeRedis Type = "redis"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	// Type is the storage backend type.
	Type Type `yaml:"type" json:"type"`
	// Path is the file path for file-based storage.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// KeyringService is the service name for keyring storage.
	KeyringService string `yaml:"keyring_service,omitempty" json:"keyring_service,omitempty"`
	// Redis holds connection settings for redis storage.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	// Addr is the host:port of the redis instance.
	Addr string `yaml:"addr" json:"addr"`
	// Password is the redis AUTH password, if any.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	// DB is the redis database index.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`
	// KeyPrefix is prepended to every key, namespacing multiple apps.
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// Factory creates storage instances based on configuration.
type Factory struct{}

// NewFactory creates a new storage factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create creates a storage instance based on the configuration.
// appName is used to derive default paths and service names.
func (f *Factory) Create(config *Config, appName string) (Store, error) {
	if config == nil {
		return nil, fmt.Errorf("storage config is required")
	}

	switch config.Type {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeFile:
		return NewFileStore(config, appName)
	case TypeKeyring:
		return NewKeyringStore(config, appName)
	case TypeRedis:
		return NewRedisStore(config)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
