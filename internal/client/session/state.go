package session

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/client/tokenstore"
)

var (
	// ErrSessionExpired means the session ended and the user has to log in
	// again.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated means there is no session to act on.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager closed")
)

// State of the session lifecycle.
type State int

const (
	StateBootstrapping State = iota
	StateAuthenticated
	StateWarning
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateAuthenticated:
		return "authenticated"
	case StateWarning:
		return "warning"
	case StateLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

// Status is a snapshot for display.
type Status struct {
	State        State
	User         *models.User
	Scope        tokenstore.Scope
	ExpiresAt    time.Time
	TimeLeft     time.Duration
	LastActivity time.Time
	LastLogout   time.Time
}

// Options tunes a Manager. Zero IdleTimeout disables idle logout and zero
// AutoRefreshBefore disables proactive refresh.
type Options struct {
	WarningWindow     time.Duration
	IdleTimeout       time.Duration
	IdleWarning       time.Duration
	AutoRefreshBefore time.Duration
	ExpiryTolerance   time.Duration
	RefreshMode       RefreshMode
	RequestTimeout    time.Duration
}

// Defaults used by the attendance frontend.
const (
	DefaultWarningWindow   = 5 * time.Minute
	DefaultIdleTimeout     = 10 * time.Minute
	DefaultIdleWarning     = 2 * time.Minute
	DefaultExpiryTolerance = 5 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
)

func DefaultOptions() Options {
	return Options{
		WarningWindow:   DefaultWarningWindow,
		IdleTimeout:     DefaultIdleTimeout,
		IdleWarning:     DefaultIdleWarning,
		ExpiryTolerance: DefaultExpiryTolerance,
		RefreshMode:     RefreshAuto,
		RequestTimeout:  DefaultRequestTimeout,
	}
}
