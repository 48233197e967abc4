// Package scheme manages the lifecycle of an OAuth2-style access/refresh
// token pair for a client application making authenticated HTTP calls.
//
// The scheme keeps a valid access token available to outgoing requests,
// transparently refreshes it before or upon expiry, coalesces concurrent
// refresh attempts into a single call, and falls back to a clean
// logged-out state when refreshing is impossible.
//
// # Components
//
//   - TokenState: tri-state credentials (access token, refresh token,
//     client id) mirrored over a storage.Store
//   - ExpirationStore: the two expiration instants, second-truncated
//   - Coordinator: the single-flight refresh state machine
//   - Scheduler: proactive refresh at 75% of the token lifetime
//   - Gate: an http.RoundTripper that attaches, refreshes, and defers
//
// # Usage
//
//	cfg := scheme.DefaultConfig()
//	cfg.Endpoints.Refresh = &scheme.Endpoint{URL: "https://api.example.com/token"}
//	cfg.Endpoints.User = &scheme.Endpoint{URL: "https://api.example.com/me"}
//
//	s, _ := scheme.New(cfg, store, nil)
//	_ = s.Mount(ctx)
//	resp, _ := s.Client().Get("https://api.example.com/things")
//
// Error handling deliberately favors silent self-healing: a failed
// refresh results in a logged-out state rather than a surfaced error.
// The Outcome type makes the taken branch observable for callers and
// telemetry that care.
package scheme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/CliForge/authflow/pkg/storage"
)

// RefreshScheme composes the token lifecycle components around a shared
// configuration, storage and session.
type RefreshScheme struct {
	cfg         *Config
	store       storage.Store
	tokens      *TokenState
	expirations *ExpirationStore
	coordinator *Coordinator
	scheduler   *Scheduler
	session     Session
	client      *http.Client
	log         logrus.FieldLogger

	gateInstalled bool
}

// New creates a refresh scheme over the given storage. A nil session gets
// an in-process MemorySession.
func New(cfg *Config, store storage.Store, session Session) (*RefreshScheme, error) {
	if cfg == nil {
		return nil, fmt.Errorf("scheme config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.withDefaults()

	if session == nil {
		session = NewMemorySession()
	}

	s := &RefreshScheme{
		cfg:     cfg,
		store:   store,
		session: session,
		client:  cfg.HTTPClient,
		log:     cfg.Logger,
	}
	s.tokens = NewTokenState(store, cfg)
	s.expirations = NewExpirationStore(store, cfg)
	s.coordinator = newCoordinator(s)
	s.scheduler = newScheduler(s)

	return s, nil
}

// Tokens exposes the credential state.
func (s *RefreshScheme) Tokens() *TokenState { return s.tokens }

// Expirations exposes the expiration state.
func (s *RefreshScheme) Expirations() *ExpirationStore { return s.expirations }

// Coordinator exposes the refresh coordinator.
func (s *RefreshScheme) Coordinator() *Coordinator { return s.coordinator }

// Session exposes the session manager.
func (s *RefreshScheme) Session() Session { return s.session }

// Client returns the scheme's HTTP client. After Mount the client's
// transport is wrapped by the request gate, so requests made through it
// are kept authenticated.
func (s *RefreshScheme) Client() *http.Client { return s.client }

// Gate wraps a transport with the request gate, for installing the scheme
// on clients it does not own. A nil next uses http.DefaultTransport.
func (s *RefreshScheme) Gate(next http.RoundTripper) *Gate {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Gate{scheme: s, next: next}
}

// Mount restores credential state from storage and installs the request
// gate. When the restored refresh token has already expired (or, with
// AutoLogout, the access token) the scheme logs out locally before any
// request is attempted. After the bootstrap user fetch, an authenticated
// session with auto-refresh enabled gets one refresh and an armed
// scheduler.
func (s *RefreshScheme) Mount(ctx context.Context) error {
	if !s.cfg.TokensDisabled {
		if _, err := s.tokens.SyncToken(ctx); err != nil {
			return fmt.Errorf("failed to restore access token: %w", err)
		}
		if _, err := s.tokens.SyncRefreshToken(ctx); err != nil {
			return fmt.Errorf("failed to restore refresh token: %w", err)
		}
		if _, err := s.expirations.SyncAccess(ctx); err != nil {
			return fmt.Errorf("failed to restore access token expiration: %w", err)
		}
		if _, err := s.expirations.SyncRefresh(ctx); err != nil {
			return fmt.Errorf("failed to restore refresh token expiration: %w", err)
		}

		now := s.cfg.Clock.Now()
		refreshExpired := s.expirations.Refresh().Expired(now)
		accessExpired := s.expirations.Access().Expired(now)
		if refreshExpired || (s.cfg.AutoLogout && accessExpired) {
			s.log.Debug("stored tokens expired, logging out locally")
			s.logoutLocally(ctx)
		} else if _, err := s.tokens.SyncClientID(ctx); err != nil {
			return fmt.Errorf("failed to restore client id: %w", err)
		}
	}

	// With AutoLogout the bootstrap fetch decides whether to force a
	// logout, so the gate must not intercept it.
	if s.cfg.AutoLogout {
		s.FetchUserOnce(ctx)
		s.installGate()
	} else {
		s.installGate()
		s.FetchUserOnce(ctx)
	}

	if s.session.LoggedIn() && s.cfg.AutoRefresh {
		s.coordinator.Refresh(ctx)
		s.scheduler.Schedule()
	}

	return nil
}

// Login posts the given credentials to the login endpoint, applies the
// token response, fetches the user and arms the scheduler. Any leftover
// local state is cleared first. No-op when no login endpoint is
// configured.
func (s *RefreshScheme) Login(ctx context.Context, credentials map[string]interface{}) error {
	if s.cfg.Endpoints.Login == nil {
		s.log.Debug("login endpoint disabled, skipping login")
		return nil
	}

	// Ditch any leftover tokens before attempting a fresh login.
	s.logoutLocally(ctx)

	payload, err := s.doJSON(ctx, s.cfg.Endpoints.Login, credentials)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := s.updateTokens(ctx, payload); err != nil {
		return err
	}

	s.FetchUserOnce(ctx)

	if s.cfg.AutoRefresh {
		s.scheduler.Schedule()
	}

	return nil
}

// SetUserToken applies an externally obtained token response, for
// issuance flows performed outside the scheme. The payload is shaped like
// a login response and read through the configured property paths.
func (s *RefreshScheme) SetUserToken(ctx context.Context, payload map[string]interface{}) error {
	if err := s.updateTokens(ctx, payload); err != nil {
		return err
	}
	if s.cfg.AutoRefresh {
		s.scheduler.Schedule()
	}
	return nil
}

// Logout calls the logout endpoint best-effort, then clears all local
// state. Local logout happens regardless of the server call outcome.
func (s *RefreshScheme) Logout(ctx context.Context) error {
	if ep := s.cfg.Endpoints.Logout; ep != nil {
		if _, err := s.doJSON(ctx, ep, nil); err != nil {
			s.log.WithError(err).Debug("server logout failed, continuing with local logout")
		}
	}
	s.logoutLocally(ctx)
	return nil
}

// RefreshTokens runs one refresh through the coordinator.
func (s *RefreshScheme) RefreshTokens(ctx context.Context) Outcome {
	return s.coordinator.Refresh(ctx)
}

// ScheduleRefresh arms the proactive refresh scheduler.
func (s *RefreshScheme) ScheduleRefresh() {
	s.scheduler.Schedule()
}

// FetchUser retrieves the user profile from the user endpoint and records
// it in the session. A failed fetch is treated as "no user data
// available" and never forces a logout.
func (s *RefreshScheme) FetchUser(ctx context.Context) (map[string]interface{}, error) {
	if s.cfg.Endpoints.User == nil {
		return s.session.User(), nil
	}

	payload, err := s.doJSON(ctx, s.cfg.Endpoints.User, nil)
	if err != nil {
		s.log.WithError(err).Debug("user fetch failed, continuing without user data")
		return nil, nil
	}

	user := payload
	if s.cfg.UserProperty != "" {
		if value, ok := extractProperty(payload, s.cfg.UserProperty); ok {
			if m, ok := value.(map[string]interface{}); ok {
				user = m
			}
		}
	}

	s.session.SetUser(user)
	return user, nil
}

// FetchUserOnce fetches the user only when the session has none yet.
func (s *RefreshScheme) FetchUserOnce(ctx context.Context) {
	if s.session.User() == nil {
		_, _ = s.FetchUser(ctx)
	}
}

// logoutLocally resets the scheme to a clean logged-out state: access
// token cleared, scheduler stopped, coordinator reset, refresh token,
// client id and both expirations set to the cleared sentinel, session
// reset. This is the single path used by refresh failure, expired
// refresh-token detection and explicit logout.
func (s *RefreshScheme) logoutLocally(ctx context.Context) {
	if !s.cfg.TokensDisabled {
		if err := s.tokens.ClearToken(ctx); err != nil {
			s.log.WithError(err).Warn("failed to clear access token")
		}
	}

	s.scheduler.Stop()
	s.coordinator.reset()

	if err := s.tokens.ClearRefreshToken(ctx); err != nil {
		s.log.WithError(err).Warn("failed to clear refresh token")
	}
	if err := s.tokens.ClearClientID(ctx); err != nil {
		s.log.WithError(err).Warn("failed to clear client id")
	}
	if err := s.expirations.ClearAccess(ctx); err != nil {
		s.log.WithError(err).Warn("failed to clear access token expiration")
	}
	if err := s.expirations.ClearRefresh(ctx); err != nil {
		s.log.WithError(err).Warn("failed to clear refresh token expiration")
	}

	s.session.Reset(ctx)
}

// updateTokens applies a token response to the credential and expiration
// state. Shared by login, refresh and SetUserToken.
func (s *RefreshScheme) updateTokens(ctx context.Context, payload map[string]interface{}) error {
	if s.cfg.TokensDisabled {
		return nil
	}

	if token, ok := extractString(payload, s.cfg.TokenProperty); ok {
		if s.cfg.TokenType != "" {
			token = s.cfg.TokenType + " " + token
		}
		if err := s.tokens.SetToken(ctx, token); err != nil {
			return fmt.Errorf("failed to store access token: %w", err)
		}
	}

	if refreshValue, ok := extractString(payload, s.cfg.RefreshTokenProperty); ok {
		previous := s.tokens.RefreshToken()
		changed := !previous.Present() || previous.Value != refreshValue
		s.coordinator.setRefreshTokenChanged(changed)

		if err := s.tokens.SetRefreshToken(ctx, refreshValue); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}

		if err := s.expirations.SetAccess(ctx, s.accessTokenExpiry(payload)); err != nil {
			return fmt.Errorf("failed to store access token expiration: %w", err)
		}

		if maxAge := s.cfg.RefreshTokenMaxAge; maxAge > 0 {
			// Reset the refresh window only when none is stored or the
			// refresh token actually changed, so refreshes that reuse the
			// same refresh token do not extend it.
			current := s.expirations.Refresh()
			if !current.Present() || s.coordinator.refreshTokenChanged() {
				at := s.cfg.Clock.Now().UnixMilli() + int64(maxAge)*1000
				if err := s.expirations.SetRefresh(ctx, at); err != nil {
					return fmt.Errorf("failed to store refresh token expiration: %w", err)
				}
			}
			s.coordinator.setRefreshTokenChanged(false)
		}
	}

	if id, ok := extractString(payload, s.cfg.ClientIDProperty); ok {
		if err := s.tokens.SetClientID(ctx, id); err != nil {
			return fmt.Errorf("failed to store client id: %w", err)
		}
	}

	return nil
}

// accessTokenExpiry picks the access token expiration in ms: the token's
// own exp claim when it decodes as a JWT, else the response expires_at
// field (seconds), else issued_at + expires_in with configured defaults.
func (s *RefreshScheme) accessTokenExpiry(payload map[string]interface{}) int64 {
	if token := s.tokens.Token(); token.Present() {
		if exp, err := tokenExpiry(rawToken(token.Value)); err == nil {
			return exp.UnixMilli()
		}
	}

	if at, ok := extractInt64(payload, s.cfg.ExpiresAtProperty); ok {
		return at * 1000
	}

	issuedAt := s.cfg.Clock.Now().UnixMilli()
	if ia, ok := extractInt64(payload, s.cfg.IssuedAtProperty); ok {
		issuedAt = ia
	}
	ttl := int64(s.cfg.TokenMaxAge)
	if in, ok := extractInt64(payload, s.cfg.ExpiresInProperty); ok {
		ttl = in
	}
	return issuedAt + ttl*1000
}

// installGate wraps the scheme client's transport with the request gate.
func (s *RefreshScheme) installGate() {
	if s.gateInstalled {
		return
	}
	s.client.Transport = s.Gate(s.client.Transport)
	s.gateInstalled = true
}

// doJSON executes one JSON request against an endpoint and decodes the
// response payload. A nil body sends no request body.
func (s *RefreshScheme) doJSON(ctx context.Context, ep *Endpoint, body map[string]interface{}) (map[string]interface{}, error) {
	method := ep.Method
	if method == "" {
		if body != nil {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, ep.URL, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed: %s - %s", resp.Status, string(data))
	}

	payload := make(map[string]interface{})
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return payload, nil
}
