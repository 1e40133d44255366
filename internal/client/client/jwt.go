package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromJWT reads the exp claim of token without verifying it. The
// client never holds the signing key; the value only drives local timers.
// It returns zero for anything that is not a JWT with exp.
func ExpiryFromJWT(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
