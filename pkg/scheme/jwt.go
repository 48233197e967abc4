package scheme

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry extracts the exp claim from a JWT WITHOUT validation.
// Returns an error for malformed tokens or tokens lacking an exp claim,
// NOT for expired or unsigned ones; callers fall back to response fields.
func tokenExpiry(tokenString string) (time.Time, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse JWT: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}, fmt.Errorf("failed to extract claims from token")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}

	return time.Unix(int64(exp), 0), nil
}
