// Package common contains small shared constants and helpers used by the
// client transport, the fake backend and the CLI.
package common

// HTTP conventions of the authentication backend.
const (
	// AuthorizationHeader carries "Bearer <token>" on authorized requests.
	AuthorizationHeader = "Authorization"
	// BearerPrefix precedes the token in AuthorizationHeader.
	BearerPrefix = "Bearer "

	// AccessCookieName and RefreshCookieName are the cookies set by the
	// backend for cookie-authenticated requests.
	AccessCookieName  = "access_token_cookie"
	RefreshCookieName = "refresh_token_cookie"
)
