package authtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var errWrongKind = errors.New("wrong token kind")

// Claims are the registered claims plus the token kind.
type Claims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

type issuer struct {
	secret []byte
	clock  clockwork.Clock
}

// issue signs an HS256 token for userID valid for ttl.
func (i issuer) issue(userID int64, kind string, ttl time.Duration) (string, time.Time, error) {
	now := i.clock.Now()
	exp := now.Add(ttl).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Kind: kind,
	})

	s, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

// verify validates signature and expiry against the issuer's clock.
func (i issuer) verify(tokenString, kind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, errWrongKind
	}
	return claims, nil
}
