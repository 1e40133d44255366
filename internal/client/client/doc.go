// Package client is the HTTP client of the attendance backend's
// authentication API.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): Login,
//     Register, Logout, the two refresh forms, Profile, TokenExpiry and a
//     generic authorized Call.
//  2. A concrete net/http implementation (see HTTPClient) that keeps a cookie
//     jar for the HTTP-only refresh cookie, sends bearer tokens and maps HTTP
//     statuses to sentinel errors.
//  3. ExpiryFromJWT, which reads a token's exp claim when a response carries
//     no explicit expiry.
//
// # Error Handling
//
// Conditions are exposed as sentinel errors matched with errors.Is:
// ErrUnauthorized (401), ErrUnavailable (network failure or 5xx) and
// ErrNoRefreshToken. Every non-2xx response is an *APIError carrying the
// status and the server's message.
//
// Token lifetime is not handled here: retrying after a refresh is the session
// manager's job, so each call reports a 401 as is.
package client
