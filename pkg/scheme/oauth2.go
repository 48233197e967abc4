package scheme

import (
	"golang.org/x/oauth2"
)

// FromOAuth2Token adapts a token obtained through golang.org/x/oauth2
// (e.g. a password or device-code grant performed outside the scheme)
// into a response payload consumable by SetUserToken with the default
// property paths.
func FromOAuth2Token(t *oauth2.Token) map[string]interface{} {
	if t == nil {
		return nil
	}

	payload := map[string]interface{}{
		"access_token": t.AccessToken,
	}
	if t.TokenType != "" {
		payload["token_type"] = t.TokenType
	}
	if t.RefreshToken != "" {
		payload["refresh_token"] = t.RefreshToken
	}
	if !t.Expiry.IsZero() {
		payload["expires_at"] = t.Expiry.Unix()
	}
	return payload
}
