package scheme

import (
	"context"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestFromOAuth2Token(t *testing.T) {
	expiry := time.Unix(1_700_003_600, 0)
	payload := FromOAuth2Token(&oauth2.Token{
		AccessToken:  "abc",
		TokenType:    "Bearer",
		RefreshToken: "r1",
		Expiry:       expiry,
	})

	if payload["access_token"] != "abc" {
		t.Errorf("access_token = %v, want abc", payload["access_token"])
	}
	if payload["refresh_token"] != "r1" {
		t.Errorf("refresh_token = %v, want r1", payload["refresh_token"])
	}
	if payload["expires_at"] != int64(1_700_003_600) {
		t.Errorf("expires_at = %v, want 1700003600", payload["expires_at"])
	}

	if FromOAuth2Token(nil) != nil {
		t.Error("nil token should produce a nil payload")
	}
}

func TestFromOAuth2Token_FeedsSetUserToken(t *testing.T) {
	clock := newFakeClock(time.Unix(1_700_000_000, 0))

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.AutoRefresh = false

	s := newTestScheme(t, cfg)

	payload := FromOAuth2Token(&oauth2.Token{
		AccessToken:  "abc",
		RefreshToken: "r1",
		Expiry:       time.Unix(1_700_003_600, 0),
	})
	if err := s.SetUserToken(context.Background(), payload); err != nil {
		t.Fatalf("SetUserToken() error = %v", err)
	}

	if token := s.tokens.Token(); token.Value != "Bearer abc" {
		t.Errorf("access token = %q, want Bearer abc", token.Value)
	}
	if exp := s.expirations.Access(); exp.At != 1_700_003_600_000 {
		t.Errorf("access expiration = %d, want 1700003600000", exp.At)
	}
}
