package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
)

// FileStore implements file-backed storage. All keys live in a single JSON
// document; the in-memory view is loaded lazily and reconciled on Sync.
type FileStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// NewFileStore creates a new file-backed store.
func NewFileStore(config *Config, appName string) (*FileStore, error) {
	path := config.Path
	if path == "" {
		// Use XDG-compliant default path
		configDir := filepath.Join(xdg.ConfigHome, appName)
		path = filepath.Join(configDir, "credentials.json")
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{
		path:   path,
		values: make(map[string]string),
	}, nil
}

// Get returns the in-memory value for key.
func (f *FileStore) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.values[key]
	return value, ok
}

// Set writes the value to memory and rewrites the backing file.
func (f *FileStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	persisted, err := f.readFile()
	if err != nil {
		return err
	}

	f.values[key] = value
	persisted[key] = value
	return f.writeFile(persisted)
}

// Delete removes the key from memory and from the backing file.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	persisted, err := f.readFile()
	if err != nil {
		return err
	}

	delete(f.values, key)
	delete(persisted, key)
	return f.writeFile(persisted)
}

// Sync re-reads the backing file and reconciles the in-memory value.
func (f *FileStore) Sync(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	persisted, err := f.readFile()
	if err != nil {
		return "", false, err
	}

	value, ok := persisted[key]
	if ok {
		f.values[key] = value
	} else {
		delete(f.values, key)
	}

	return value, ok, nil
}

// GetPath returns the path to the backing file.
func (f *FileStore) GetPath() string {
	return f.path
}

func (f *FileStore) readFile() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage file: %w", err)
	}

	return values, nil
}

func (f *FileStore) writeFile(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage values: %w", err)
	}

	// Restricted permissions, the file holds credentials
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}

	return nil
}
