package scheme

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Endpoint describes one HTTP endpoint the scheme talks to.
// A nil *Endpoint in Config disables the corresponding operation.
type Endpoint struct {
	// URL is the absolute endpoint URL.
	URL string `yaml:"url" json:"url"`
	// Method is the HTTP method. Defaults to POST for requests carrying a
	// body and GET otherwise.
	Method string `yaml:"method,omitempty" json:"method,omitempty"`
}

// Endpoints groups the endpoints a scheme instance may call.
type Endpoints struct {
	// Refresh is the token refresh endpoint.
	Refresh *Endpoint `yaml:"refresh,omitempty" json:"refresh,omitempty"`
	// Login is the credential login endpoint.
	Login *Endpoint `yaml:"login,omitempty" json:"login,omitempty"`
	// Logout is the server-side logout endpoint, called best-effort.
	Logout *Endpoint `yaml:"logout,omitempty" json:"logout,omitempty"`
	// User is the user profile endpoint.
	User *Endpoint `yaml:"user,omitempty" json:"user,omitempty"`
}

// Config holds the full option surface of a refresh scheme.
type Config struct {
	// TokensDisabled turns off all token handling. Every token-dependent
	// operation becomes a no-op and requests pass through unauthenticated.
	TokensDisabled bool `yaml:"tokens_disabled,omitempty" json:"tokens_disabled,omitempty"`

	// TokenProperty is the response property path of the access token.
	TokenProperty string `yaml:"token_property,omitempty" json:"token_property,omitempty"`
	// TokenType is prepended to the access token in the auth header
	// (e.g. "Bearer"). Empty disables the prefix.
	TokenType string `yaml:"token_type,omitempty" json:"token_type,omitempty"`
	// TokenMaxAge is the fallback access token lifetime in seconds, used
	// when neither the token itself nor the response carries an expiry.
	TokenMaxAge int `yaml:"token_max_age,omitempty" json:"token_max_age,omitempty"`

	// RefreshTokenProperty is the response property path of the refresh token.
	RefreshTokenProperty string `yaml:"refresh_token_property,omitempty" json:"refresh_token_property,omitempty"`
	// RefreshTokenMaxAge is the refresh token lifetime in seconds.
	// Zero disables refresh token expiration tracking.
	RefreshTokenMaxAge int `yaml:"refresh_token_max_age,omitempty" json:"refresh_token_max_age,omitempty"`
	// RefreshTokenDataField is the request body field carrying the refresh
	// token on refresh calls. Empty omits the field.
	RefreshTokenDataField string `yaml:"refresh_token_data_field,omitempty" json:"refresh_token_data_field,omitempty"`

	// ClientIDProperty is the response property path of the client id.
	// Empty disables client id handling.
	ClientIDProperty string `yaml:"client_id_property,omitempty" json:"client_id_property,omitempty"`
	// ClientIDDataField is the request body field carrying the client id
	// on refresh calls. Empty omits the field.
	ClientIDDataField string `yaml:"client_id_data_field,omitempty" json:"client_id_data_field,omitempty"`

	// GrantTypeValue is the grant type sent on refresh calls.
	GrantTypeValue string `yaml:"grant_type_value,omitempty" json:"grant_type_value,omitempty"`
	// GrantTypeDataField is the request body field carrying the grant type.
	// Empty omits the field.
	GrantTypeDataField string `yaml:"grant_type_data_field,omitempty" json:"grant_type_data_field,omitempty"`

	// IssuedAtProperty is the response property path of the issue instant
	// in milliseconds, used by the expiry fallback chain.
	IssuedAtProperty string `yaml:"issued_at_property,omitempty" json:"issued_at_property,omitempty"`
	// ExpiresAtProperty is the response property path of the absolute
	// expiry in seconds.
	ExpiresAtProperty string `yaml:"expires_at_property,omitempty" json:"expires_at_property,omitempty"`
	// ExpiresInProperty is the response property path of the token
	// lifetime in seconds.
	ExpiresInProperty string `yaml:"expires_in_property,omitempty" json:"expires_in_property,omitempty"`

	// UserProperty is the response property path of the user object on the
	// user endpoint. Empty uses the whole response payload.
	UserProperty string `yaml:"user_property,omitempty" json:"user_property,omitempty"`

	// HeaderName is the request header the access token is attached to.
	HeaderName string `yaml:"header_name,omitempty" json:"header_name,omitempty"`

	// TokenKey, RefreshTokenKey and ClientIDKey are the storage keys of the
	// three credential values.
	TokenKey        string `yaml:"token_key,omitempty" json:"token_key,omitempty"`
	RefreshTokenKey string `yaml:"refresh_token_key,omitempty" json:"refresh_token_key,omitempty"`
	ClientIDKey     string `yaml:"client_id_key,omitempty" json:"client_id_key,omitempty"`
	// AccessExpirationKey and RefreshExpirationKey are the storage keys of
	// the two expiration records.
	AccessExpirationKey  string `yaml:"access_expiration_key,omitempty" json:"access_expiration_key,omitempty"`
	RefreshExpirationKey string `yaml:"refresh_expiration_key,omitempty" json:"refresh_expiration_key,omitempty"`

	// Endpoints lists the endpoints the scheme calls. Omitted endpoints
	// disable the corresponding operations.
	Endpoints Endpoints `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`

	// AutoLogout forces a local logout at mount time when the access token
	// has expired, even without a failed call.
	AutoLogout bool `yaml:"auto_logout,omitempty" json:"auto_logout,omitempty"`
	// AutoRefresh enables the proactive refresh scheduler.
	AutoRefresh bool `yaml:"auto_refresh,omitempty" json:"auto_refresh,omitempty"`

	// DeferTimeout bounds how long a request waits for an in-flight
	// refresh before proceeding with whatever token is current.
	DeferTimeout time.Duration `yaml:"defer_timeout,omitempty" json:"defer_timeout,omitempty"`

	// HTTPClient executes the scheme's own calls. Defaults to a client
	// with a 30 second timeout.
	HTTPClient *http.Client `yaml:"-" json:"-"`
	// Logger receives scheme diagnostics. Defaults to a discard logger.
	Logger logrus.FieldLogger `yaml:"-" json:"-"`
	// Clock supplies time and timers, overridable in tests.
	Clock Clock `yaml:"-" json:"-"`
}

// DefaultConfig returns a Config with the conventional OAuth2 response
// shape and storage keys filled in. Endpoints are left empty.
func DefaultConfig() *Config {
	return &Config{
		TokenProperty:         "access_token",
		TokenType:             "Bearer",
		TokenMaxAge:           1800,
		RefreshTokenProperty:  "refresh_token",
		RefreshTokenMaxAge:    60 * 60 * 24 * 30,
		RefreshTokenDataField: "refresh_token",
		ClientIDDataField:     "client_id",
		GrantTypeValue:        "refresh_token",
		GrantTypeDataField:    "grant_type",
		IssuedAtProperty:      "issued_at",
		ExpiresAtProperty:     "expires_at",
		ExpiresInProperty:     "expires_in",
		HeaderName:            "Authorization",
		TokenKey:              "auth.token",
		RefreshTokenKey:       "auth.refresh_token",
		ClientIDKey:           "auth.client_id",
		AccessExpirationKey:   "auth.token_expiration",
		RefreshExpirationKey:  "auth.refresh_token_expiration",
		AutoRefresh:           true,
		DeferTimeout:          30 * time.Second,
	}
}

// withDefaults fills zero-valued plumbing fields. Data-shape fields are
// deliberately not defaulted here: an empty property or data field means
// "disabled" and must survive as configured.
func (c *Config) withDefaults() *Config {
	if c.HeaderName == "" {
		c.HeaderName = "Authorization"
	}
	if c.TokenKey == "" {
		c.TokenKey = "auth.token"
	}
	if c.RefreshTokenKey == "" {
		c.RefreshTokenKey = "auth.refresh_token"
	}
	if c.ClientIDKey == "" {
		c.ClientIDKey = "auth.client_id"
	}
	if c.AccessExpirationKey == "" {
		c.AccessExpirationKey = "auth.token_expiration"
	}
	if c.RefreshExpirationKey == "" {
		c.RefreshExpirationKey = "auth.refresh_token_expiration"
	}
	if c.TokenMaxAge <= 0 {
		c.TokenMaxAge = 1800
	}
	if c.DeferTimeout <= 0 {
		c.DeferTimeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		c.Logger = logger
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	for name, ep := range map[string]*Endpoint{
		"refresh": c.Endpoints.Refresh,
		"login":   c.Endpoints.Login,
		"logout":  c.Endpoints.Logout,
		"user":    c.Endpoints.User,
	} {
		if ep != nil && ep.URL == "" {
			return fmt.Errorf("%s endpoint requires a url", name)
		}
	}

	if !c.TokensDisabled && c.TokenProperty == "" {
		return fmt.Errorf("token_property is required unless tokens are disabled")
	}

	return nil
}
