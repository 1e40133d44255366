package models

import "time"

// Credentials is the bundle of secrets and metadata for one signed-in
// session. Values are replaced wholesale; holders must not mutate a bundle
// they did not create.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// TimeLeft returns how long the access token stays valid relative to now.
// It is negative once the token has expired.
func (c *Credentials) TimeLeft(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// Expired reports whether the access token is past its expiry at now.
func (c *Credentials) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// WithAccess returns a copy carrying a new access token and expiry. An empty
// token means the backend rotated the access cookie instead: the stored token
// is stale and is dropped, so requests authenticate with the cookie.
func (c Credentials) WithAccess(token string, expiresAt time.Time) *Credentials {
	c.AccessToken = token
	c.ExpiresAt = expiresAt
	return &c
}

// CookieOnly reports whether the access token lives only in the HTTP
// client's cookie jar.
func (c *Credentials) CookieOnly() bool {
	return c.AccessToken == ""
}
