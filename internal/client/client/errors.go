package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable covers network failures and 5xx responses.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized is a 401: bad credentials or an expired token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoRefreshToken means a bearer refresh was requested without a token.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// APIError is a non-2xx response. Message is taken from the {"error": ...}
// or {"message": ...} body when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Unwrap lets errors.Is match ErrUnauthorized and ErrUnavailable.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}

// Message returns the server-provided message of err, or err's text.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
