package scheme

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CliForge/authflow/pkg/storage"
)

func newLoginServer(t *testing.T, response map[string]interface{}) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLogin(t *testing.T) {
	server := newLoginServer(t, map[string]interface{}{
		"access_token":  "abc",
		"refresh_token": "r1",
		"expires_in":    60,
	})

	clock := newFakeClock(time.Unix(1_700_000_000, 0))

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.Endpoints.Login = &Endpoint{URL: server.URL}

	s := newTestScheme(t, cfg)

	err := s.Login(context.Background(), map[string]interface{}{
		"username": "alice",
		"password": "secret",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if token := s.tokens.Token(); token.Value != "Bearer abc" {
		t.Errorf("access token = %q, want Bearer abc", token.Value)
	}
	if refresh := s.tokens.RefreshToken(); refresh.Value != "r1" {
		t.Errorf("refresh token = %q, want r1", refresh.Value)
	}

	wantAccess := clock.Now().UnixMilli() + 60_000
	if exp := s.expirations.Access(); exp.At != wantAccess {
		t.Errorf("access expiration = %d, want %d", exp.At, wantAccess)
	}

	wantRefresh := clock.Now().UnixMilli() + int64(cfg.RefreshTokenMaxAge)*1000
	if exp := s.expirations.Refresh(); exp.At != wantRefresh {
		t.Errorf("refresh expiration = %d, want %d", exp.At, wantRefresh)
	}

	timer := clock.lastTimer()
	if timer == nil {
		t.Fatal("scheduler timer not armed after login")
	}
	if timer.delay != 45*time.Second {
		t.Errorf("scheduler delay = %v, want 45s", timer.delay)
	}
}

func TestLogin_NoEndpointConfigured(t *testing.T) {
	s := newTestScheme(t, DefaultConfig())

	if err := s.Login(context.Background(), map[string]interface{}{"username": "alice"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if s.tokens.Token().Present() {
		t.Error("access token set without a login endpoint")
	}
}

func TestSetUserTokenExpiry(t *testing.T) {
	// exp claim 1700003600 (seconds).
	jwtToken := createTestToken(t, map[string]interface{}{"exp": float64(1_700_003_600)})
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		payload map[string]interface{}
		want    int64
	}{
		{
			name: "JWT exp claim wins",
			payload: map[string]interface{}{
				"access_token":  jwtToken,
				"refresh_token": "r1",
				"expires_at":    1_700_009_999,
				"expires_in":    60,
			},
			want: 1_700_003_600_000,
		},
		{
			name: "expires_at when the token is opaque",
			payload: map[string]interface{}{
				"access_token":  "opaque",
				"refresh_token": "r1",
				"expires_at":    1_700_007_200,
				"expires_in":    60,
			},
			want: 1_700_007_200_000,
		},
		{
			name: "issued_at plus expires_in",
			payload: map[string]interface{}{
				"access_token":  "opaque",
				"refresh_token": "r1",
				"issued_at":     1_700_001_000_000,
				"expires_in":    3600,
			},
			want: 1_700_001_000_000 + 3_600_000,
		},
		{
			name: "now plus expires_in when issued_at is missing",
			payload: map[string]interface{}{
				"access_token":  "opaque",
				"refresh_token": "r1",
				"expires_in":    60,
			},
			want: now.UnixMilli() + 60_000,
		},
		{
			name: "now plus configured max age as last resort",
			payload: map[string]interface{}{
				"access_token":  "opaque",
				"refresh_token": "r1",
			},
			want: now.UnixMilli() + 1800*1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(now)

			cfg := DefaultConfig()
			cfg.Clock = clock
			cfg.AutoRefresh = false

			s := newTestScheme(t, cfg)
			if err := s.SetUserToken(context.Background(), tt.payload); err != nil {
				t.Fatalf("SetUserToken() error = %v", err)
			}

			if exp := s.expirations.Access(); exp.At != tt.want {
				t.Errorf("access expiration = %d, want %d", exp.At, tt.want)
			}
		})
	}
}

func TestRefreshWindowResetOnlyOnNewToken(t *testing.T) {
	clock := newFakeClock(time.Unix(1_700_000_000, 0))

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.AutoRefresh = false

	s := newTestScheme(t, cfg)
	ctx := context.Background()

	apply := func(refreshToken string) {
		t.Helper()
		err := s.updateTokens(ctx, map[string]interface{}{
			"access_token":  "opaque",
			"refresh_token": refreshToken,
			"expires_in":    60,
		})
		if err != nil {
			t.Fatalf("updateTokens() error = %v", err)
		}
	}

	apply("r1")
	first := s.expirations.Refresh().At

	// Same refresh token an hour later: the window must not move.
	clock.advance(time.Hour)
	apply("r1")
	if got := s.expirations.Refresh().At; got != first {
		t.Errorf("refresh expiration moved from %d to %d on unchanged token", first, got)
	}

	// A rotated refresh token resets the window.
	clock.advance(time.Hour)
	apply("r2")
	want := clock.Now().UnixMilli() + int64(cfg.RefreshTokenMaxAge)*1000
	if got := s.expirations.Refresh().At; got != want {
		t.Errorf("refresh expiration = %d, want %d after token rotation", got, want)
	}
}

func TestMount_RestoresState(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	clock := newFakeClock(time.Unix(1_700_000_000, 0))

	seed := func(key, value string) {
		t.Helper()
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}
	seed("auth.token", "Bearer abc")
	seed("auth.refresh_token", "r1")
	seed("auth.client_id", "client-1")
	seed("auth.token_expiration", "1700003600000")
	seed("auth.refresh_token_expiration", "1702000000000")

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.AutoRefresh = false

	s, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Mount(ctx); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	if token := s.tokens.Token(); token.Value != "Bearer abc" {
		t.Errorf("access token = %q, want Bearer abc", token.Value)
	}
	if id := s.tokens.ClientID(); id.Value != "client-1" {
		t.Errorf("client id = %q, want client-1", id.Value)
	}
	if exp := s.expirations.Access(); exp.At != 1_700_003_600_000 {
		t.Errorf("access expiration = %d, want 1700003600000", exp.At)
	}
}

func TestMount_ExpiredRefreshTokenForcesLogout(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	clock := newFakeClock(time.Unix(1_700_000_000, 0))

	seed := func(key, value string) {
		t.Helper()
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}
	seed("auth.token", "Bearer abc")
	seed("auth.refresh_token", "r1")
	seed("auth.token_expiration", "1600000000000")
	seed("auth.refresh_token_expiration", "1600000000000")

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.AutoRefresh = false

	s, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Mount(ctx); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	if status := s.tokens.Token().Status; status != StatusCleared {
		t.Errorf("access token status = %v, want cleared", status)
	}
	if status := s.tokens.RefreshToken().Status; status != StatusCleared {
		t.Errorf("refresh token status = %v, want cleared", status)
	}

	// The cleared state must be visible in storage too.
	value, ok := store.Get("auth.refresh_token")
	if !ok || value != "false" {
		t.Errorf("stored refresh token = %q, %v; want cleared sentinel", value, ok)
	}
}

func TestMount_AutoLogoutOnExpiredAccessToken(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	clock := newFakeClock(time.Unix(1_700_000_000, 0))

	var userCalls atomic.Int64
	var userHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userCalls.Add(1)
		userHeaders = append(userHeaders, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"name": "alice"})
	}))
	t.Cleanup(server.Close)

	seed := func(key, value string) {
		t.Helper()
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}
	// Expired access token, still-valid refresh token.
	seed("auth.token", "Bearer abc")
	seed("auth.refresh_token", "r1")
	seed("auth.token_expiration", "1600000000000")
	seed("auth.refresh_token_expiration", "1702000000000")

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.AutoLogout = true
	cfg.AutoRefresh = false
	cfg.Endpoints.User = &Endpoint{URL: server.URL}

	s, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Mount(ctx); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	if status := s.tokens.Token().Status; status != StatusCleared {
		t.Errorf("access token status = %v, want cleared", status)
	}
	if status := s.tokens.RefreshToken().Status; status != StatusCleared {
		t.Errorf("refresh token status = %v, want cleared", status)
	}

	// The bootstrap fetch runs once, before the gate is installed, so it
	// goes out unauthenticated.
	if userCalls.Load() != 1 {
		t.Fatalf("user fetches = %d, want 1", userCalls.Load())
	}
	if userHeaders[0] != "" {
		t.Errorf("bootstrap fetch carried header %q, want none", userHeaders[0])
	}

	if _, ok := s.client.Transport.(*Gate); !ok {
		t.Errorf("client transport = %T, want *Gate installed after the bootstrap fetch", s.client.Transport)
	}
	if !s.session.LoggedIn() {
		t.Error("session not logged in after bootstrap user fetch")
	}
}

func TestLogout_ClearsEverything(t *testing.T) {
	server := newLoginServer(t, map[string]interface{}{
		"access_token":  "abc",
		"refresh_token": "r1",
		"expires_in":    60,
	})

	clock := newFakeClock(time.Unix(1_700_000_000, 0))

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.Endpoints.Login = &Endpoint{URL: server.URL}

	s := newTestScheme(t, cfg)
	ctx := context.Background()

	if err := s.Login(ctx, map[string]interface{}{"username": "alice"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	timer := clock.lastTimer()
	if timer == nil {
		t.Fatal("scheduler timer not armed after login")
	}

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if status := s.tokens.Token().Status; status != StatusCleared {
		t.Errorf("access token status = %v, want cleared", status)
	}
	if status := s.tokens.RefreshToken().Status; status != StatusCleared {
		t.Errorf("refresh token status = %v, want cleared", status)
	}
	if status := s.expirations.Access().Status; status != StatusCleared {
		t.Errorf("access expiration status = %v, want cleared", status)
	}
	if status := s.expirations.Refresh().Status; status != StatusCleared {
		t.Errorf("refresh expiration status = %v, want cleared", status)
	}
	if !timer.stopped {
		t.Error("scheduler timer still armed after logout")
	}
	if s.session.LoggedIn() {
		t.Error("session still logged in after logout")
	}
}

func TestFetchUser(t *testing.T) {
	server := newLoginServer(t, map[string]interface{}{
		"user": map[string]interface{}{"name": "alice"},
	})

	cfg := DefaultConfig()
	cfg.UserProperty = "user"
	cfg.Endpoints.User = &Endpoint{URL: server.URL}

	s := newTestScheme(t, cfg)

	user, err := s.FetchUser(context.Background())
	if err != nil {
		t.Fatalf("FetchUser() error = %v", err)
	}
	if user["name"] != "alice" {
		t.Errorf("user = %v, want name alice", user)
	}
	if !s.session.LoggedIn() {
		t.Error("session not logged in after user fetch")
	}
}

func TestFetchUser_FailureDoesNotLogOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.Endpoints.User = &Endpoint{URL: server.URL}

	s := newTestScheme(t, cfg)
	seedTokens(t, s, "Bearer abc", "r1")

	user, err := s.FetchUser(context.Background())
	if err != nil {
		t.Fatalf("FetchUser() error = %v", err)
	}
	if user != nil {
		t.Errorf("user = %v, want nil", user)
	}
	if !s.tokens.Token().Present() {
		t.Error("access token lost after failed user fetch")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		store   storage.Store
		wantErr bool
	}{
		{
			name:  "valid",
			cfg:   DefaultConfig(),
			store: storage.NewMemoryStore(),
		},
		{
			name:    "nil config",
			store:   storage.NewMemoryStore(),
			wantErr: true,
		},
		{
			name:    "nil storage",
			cfg:     DefaultConfig(),
			wantErr: true,
		},
		{
			name: "endpoint without url",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Endpoints.Refresh = &Endpoint{}
				return cfg
			}(),
			store:   storage.NewMemoryStore(),
			wantErr: true,
		},
		{
			name: "missing token property",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.TokenProperty = ""
				return cfg
			}(),
			store:   storage.NewMemoryStore(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.store, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
