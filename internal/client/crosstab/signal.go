// Package crosstab propagates session changes between clients ("tabs") that
// share a durable credential scope.
//
// A tab publishes a Signal whenever it logs out or extends its session; the
// other tabs receive it through a Notifier and react via a Synchronizer.
// Notifiers exist for tabs in one process (Hub), on several hosts sharing
// Redis (RedisNotifier) and on one host sharing a directory (FileNotifier).
package crosstab

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies the signal variant.
type Kind int

const (
	// LoggedOut means the shared session was cleared.
	LoggedOut Kind = iota + 1
	// SessionExtended means the shared session got a new expiry.
	SessionExtended
)

func (k Kind) String() string {
	switch k {
	case LoggedOut:
		return "logged-out"
	case SessionExtended:
		return "session-extended"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case LoggedOut, SessionExtended:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown signal kind %d", int(k))
	}
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "logged-out":
		*k = LoggedOut
	case "session-extended":
		*k = SessionExtended
	default:
		return fmt.Errorf("unknown signal kind %q", string(b))
	}
	return nil
}

// Signal is one change notification.
type Signal struct {
	Kind Kind `json:"kind"`
	// Origin is the id of the publishing tab.
	Origin string `json:"origin"`
	// ExpiresAt is set for SessionExtended.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	At        time.Time `json:"at"`
}

// Notifier is a broadcast channel for signals. Publishers also receive their
// own signals; filtering by Origin is the subscriber's job.
type Notifier interface {
	Publish(ctx context.Context, s Signal) error
	// Subscribe returns a channel that is closed when ctx is done or the
	// notifier is closed.
	Subscribe(ctx context.Context) (<-chan Signal, error)
	Close() error
}
