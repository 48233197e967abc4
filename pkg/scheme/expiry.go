package scheme

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/CliForge/authflow/pkg/storage"
)

// Expiry is a tri-state expiration instant in milliseconds since epoch.
type Expiry struct {
	At     int64
	Status Status
}

// Present reports whether the expiry holds a usable instant.
func (e Expiry) Present() bool {
	return e.Status == StatusPresent
}

// Expired reports whether the instant has passed. Comparisons are
// truncated to whole seconds so sub-second jitter between the stored
// instant and the clock cannot flip the decision. Absent or cleared
// expirations are never considered expired.
func (e Expiry) Expired(now time.Time) bool {
	if e.Status != StatusPresent {
		return false
	}
	return now.UnixMilli()/1000 >= e.At/1000
}

// ExpirationStore persists the access and refresh token expirations
// through the storage capability.
type ExpirationStore struct {
	store storage.Store

	accessKey  string
	refreshKey string

	mu      sync.RWMutex
	access  Expiry
	refresh Expiry
}

// NewExpirationStore creates an ExpirationStore over the given store.
func NewExpirationStore(store storage.Store, cfg *Config) *ExpirationStore {
	return &ExpirationStore{
		store:      store,
		accessKey:  cfg.AccessExpirationKey,
		refreshKey: cfg.RefreshExpirationKey,
	}
}

// Access returns the in-memory access token expiration.
func (e *ExpirationStore) Access() Expiry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.access
}

// Refresh returns the in-memory refresh token expiration.
func (e *ExpirationStore) Refresh() Expiry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.refresh
}

// SetAccess stores the access token expiration.
func (e *ExpirationStore) SetAccess(ctx context.Context, at int64) error {
	return e.set(ctx, e.accessKey, &e.access, at)
}

// SetRefresh stores the refresh token expiration.
func (e *ExpirationStore) SetRefresh(ctx context.Context, at int64) error {
	return e.set(ctx, e.refreshKey, &e.refresh, at)
}

// ClearAccess marks the access token expiration as explicitly cleared.
func (e *ExpirationStore) ClearAccess(ctx context.Context) error {
	return e.clear(ctx, e.accessKey, &e.access)
}

// ClearRefresh marks the refresh token expiration as explicitly cleared.
func (e *ExpirationStore) ClearRefresh(ctx context.Context) error {
	return e.clear(ctx, e.refreshKey, &e.refresh)
}

// SyncAccess reconciles the access token expiration with storage.
func (e *ExpirationStore) SyncAccess(ctx context.Context) (Expiry, error) {
	return e.sync(ctx, e.accessKey, &e.access)
}

// SyncRefresh reconciles the refresh token expiration with storage.
func (e *ExpirationStore) SyncRefresh(ctx context.Context) (Expiry, error) {
	return e.sync(ctx, e.refreshKey, &e.refresh)
}

func (e *ExpirationStore) set(ctx context.Context, key string, exp *Expiry, at int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Set(ctx, key, strconv.FormatInt(at, 10)); err != nil {
		return err
	}
	*exp = Expiry{At: at, Status: StatusPresent}
	return nil
}

func (e *ExpirationStore) clear(ctx context.Context, key string, exp *Expiry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Set(ctx, key, clearedSentinel); err != nil {
		return err
	}
	*exp = Expiry{Status: StatusCleared}
	return nil
}

func (e *ExpirationStore) sync(ctx context.Context, key string, exp *Expiry) (Expiry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, ok, err := e.store.Sync(ctx, key)
	if err != nil {
		return *exp, err
	}

	parsed, err := expiryFromStored(value, ok)
	if err != nil {
		return *exp, err
	}
	*exp = parsed
	return *exp, nil
}

func expiryFromStored(value string, ok bool) (Expiry, error) {
	if !ok {
		return Expiry{Status: StatusAbsent}, nil
	}
	if value == clearedSentinel {
		return Expiry{Status: StatusCleared}, nil
	}
	at, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return Expiry{}, fmt.Errorf("invalid stored expiration %q: %w", value, err)
	}
	return Expiry{At: at, Status: StatusPresent}, nil
}
