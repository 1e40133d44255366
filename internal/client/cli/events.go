package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/session"
)

// printEvents writes session events as they arrive until ctx is done or the
// subscription closes.
func (a *App) printEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.events:
			if !ok {
				return
			}
			a.log.Debug(ctx, "session event", "kind", ev.Kind, "reason", ev.Reason)
			a.println()
			a.println(formatEvent(ev, a.clock.Now()))
		}
	}
}

func formatEvent(ev session.Event, now time.Time) string {
	switch ev.Kind {
	case session.EventSessionWarning:
		return fmt.Sprintf("! Your session expires at %s (in %s). Type 'extend' to stay signed in.",
			ev.ExpiresAt.Format(time.TimeOnly), ev.ExpiresAt.Sub(now).Round(time.Second))
	case session.EventSessionExtended:
		return "Session extended until " + ev.ExpiresAt.Format(time.TimeOnly) + "."
	case session.EventIdleWarning:
		return fmt.Sprintf("! No activity detected. You will be logged out at %s unless you type something.",
			ev.LogoutAt.Format(time.TimeOnly))
	case session.EventLoggedOut:
		return logoutMessage(ev.Reason)
	default:
		return ev.Kind.String()
	}
}

func logoutMessage(r session.Reason) string {
	switch r {
	case session.ReasonUser:
		return "You have been logged out."
	case session.ReasonExpired:
		return "Your session has expired. Please log in again."
	case session.ReasonIdle:
		return "You were logged out due to inactivity."
	case session.ReasonRefreshFailed:
		return "Could not renew your session. Please log in again."
	case session.ReasonUnauthorized:
		return "Your session is no longer valid. Please log in again."
	case session.ReasonRemote:
		return "You were logged out in another window."
	case session.ReasonRestoreFailed:
		return "The saved session could not be restored. Please log in again."
	default:
		return "Logged out (" + string(r) + ")."
	}
}

// runCountdown prints the time left every countdown interval while the
// session is in its warning window.
func (a *App) runCountdown(ctx context.Context) {
	ticker := a.clock.NewTicker(a.countdown)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			st := a.auth.Status(ctx)
			if st.State != session.StateWarning {
				continue
			}
			a.println(fmt.Sprintf("Session expires in %s.", st.TimeLeft.Round(time.Second)))
		}
	}
}
