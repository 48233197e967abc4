package scheme

import (
	"context"
	"strings"
	"sync"

	"github.com/CliForge/authflow/pkg/storage"
)

// clearedSentinel is the stored marker for an explicitly cleared value.
// It keeps "logged out" distinguishable from "never logged in" across
// process restarts and storage contexts.
const clearedSentinel = "false"

// Status describes whether a stored value is present, was explicitly
// cleared, or was never set.
type Status int

const (
	// StatusAbsent means the value was never set.
	StatusAbsent Status = iota
	// StatusCleared means the value was explicitly cleared.
	StatusCleared
	// StatusPresent means the value is set.
	StatusPresent
)

// Credential is a tri-state credential value.
type Credential struct {
	Value  string
	Status Status
}

// Present reports whether the credential holds a usable value.
func (c Credential) Present() bool {
	return c.Status == StatusPresent
}

func credentialFromStored(value string, ok bool) Credential {
	if !ok {
		return Credential{Status: StatusAbsent}
	}
	if value == clearedSentinel {
		return Credential{Status: StatusCleared}
	}
	return Credential{Value: value, Status: StatusPresent}
}

// TokenState is the in-memory mirror of the storage-backed credentials:
// access token, refresh token and client id.
type TokenState struct {
	store storage.Store

	tokenKey    string
	refreshKey  string
	clientIDKey string

	mu       sync.RWMutex
	token    Credential
	refresh  Credential
	clientID Credential
}

// NewTokenState creates a TokenState over the given store.
func NewTokenState(store storage.Store, cfg *Config) *TokenState {
	return &TokenState{
		store:       store,
		tokenKey:    cfg.TokenKey,
		refreshKey:  cfg.RefreshTokenKey,
		clientIDKey: cfg.ClientIDKey,
	}
}

// Token returns the in-memory access token.
func (t *TokenState) Token() Credential {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// RefreshToken returns the in-memory refresh token.
func (t *TokenState) RefreshToken() Credential {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refresh
}

// ClientID returns the in-memory client id.
func (t *TokenState) ClientID() Credential {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.clientID
}

// SetToken stores a new access token.
func (t *TokenState) SetToken(ctx context.Context, value string) error {
	return t.set(ctx, t.tokenKey, &t.token, value)
}

// SetRefreshToken stores a new refresh token.
func (t *TokenState) SetRefreshToken(ctx context.Context, value string) error {
	return t.set(ctx, t.refreshKey, &t.refresh, value)
}

// SetClientID stores a new client id.
func (t *TokenState) SetClientID(ctx context.Context, value string) error {
	return t.set(ctx, t.clientIDKey, &t.clientID, value)
}

// ClearToken marks the access token as explicitly cleared.
func (t *TokenState) ClearToken(ctx context.Context) error {
	return t.clear(ctx, t.tokenKey, &t.token)
}

// ClearRefreshToken marks the refresh token as explicitly cleared.
func (t *TokenState) ClearRefreshToken(ctx context.Context) error {
	return t.clear(ctx, t.refreshKey, &t.refresh)
}

// ClearClientID marks the client id as explicitly cleared.
func (t *TokenState) ClearClientID(ctx context.Context) error {
	return t.clear(ctx, t.clientIDKey, &t.clientID)
}

// SyncToken reconciles the access token with storage.
func (t *TokenState) SyncToken(ctx context.Context) (Credential, error) {
	return t.sync(ctx, t.tokenKey, &t.token)
}

// SyncRefreshToken reconciles the refresh token with storage.
func (t *TokenState) SyncRefreshToken(ctx context.Context) (Credential, error) {
	return t.sync(ctx, t.refreshKey, &t.refresh)
}

// SyncClientID reconciles the client id with storage.
func (t *TokenState) SyncClientID(ctx context.Context) (Credential, error) {
	return t.sync(ctx, t.clientIDKey, &t.clientID)
}

func (t *TokenState) set(ctx context.Context, key string, cred *Credential, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.Set(ctx, key, value); err != nil {
		return err
	}
	*cred = Credential{Value: value, Status: StatusPresent}
	return nil
}

func (t *TokenState) clear(ctx context.Context, key string, cred *Credential) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.Set(ctx, key, clearedSentinel); err != nil {
		return err
	}
	*cred = Credential{Status: StatusCleared}
	return nil
}

func (t *TokenState) sync(ctx context.Context, key string, cred *Credential) (Credential, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value, ok, err := t.store.Sync(ctx, key)
	if err != nil {
		return *cred, err
	}
	*cred = credentialFromStored(value, ok)
	return *cred, nil
}

// rawToken strips the configured type prefix from a stored access token,
// returning the bare token value ("Bearer abc" -> "abc").
func rawToken(stored string) string {
	if i := strings.LastIndexByte(stored, ' '); i >= 0 {
		return stored[i+1:]
	}
	return stored
}
