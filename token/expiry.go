package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryOf reads the exp claim of a JWT without verifying its signature. The
// client never holds the signing key; the expiry is only used to age the
// credential out of local storage.
func ExpiryOf(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
