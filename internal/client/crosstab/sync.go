package crosstab

import (
	"context"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/logging"
)

// Handler receives signals published by other tabs.
type Handler interface {
	// HandleRemoteLogout drops local session state without network calls
	// and without publishing. at is when the other tab logged out.
	HandleRemoteLogout(ctx context.Context, at time.Time)
	// HandleRemoteExpiry offers a newer expiry to the local session.
	HandleRemoteExpiry(ctx context.Context, expiresAt time.Time)
}

// Synchronizer dispatches foreign signals to a Handler.
type Synchronizer struct {
	notifier Notifier
	origin   string
	handler  Handler
	log      logging.Logger
	done     chan struct{}
}

func NewSynchronizer(n Notifier, origin string, h Handler, log logging.Logger) *Synchronizer {
	return &Synchronizer{notifier: n, origin: origin, handler: h, log: log}
}

// Start subscribes and dispatches in the background until ctx is done or the
// notifier closes. Signals from the own origin are ignored.
func (s *Synchronizer) Start(ctx context.Context) error {
	ch, err := s.notifier.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for sig := range ch {
			s.dispatch(ctx, sig)
		}
	}()
	return nil
}

// Done is closed when dispatching stops. It is nil before Start.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

func (s *Synchronizer) dispatch(ctx context.Context, sig Signal) {
	if sig.Origin == s.origin {
		return
	}
	switch sig.Kind {
	case LoggedOut:
		s.log.Info(ctx, "logout in another tab", "origin", sig.Origin)
		s.handler.HandleRemoteLogout(ctx, sig.At)
	case SessionExtended:
		if sig.ExpiresAt.IsZero() {
			return
		}
		s.log.Debug(ctx, "session extended in another tab", "origin", sig.Origin, "expires_at", sig.ExpiresAt)
		s.handler.HandleRemoteExpiry(ctx, sig.ExpiresAt)
	default:
		s.log.Warn(ctx, "unknown signal", "kind", sig.Kind)
	}
}
