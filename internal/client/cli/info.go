package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/session"
)

// Extend refreshes the access token now.
func (a *App) Extend(ctx context.Context, _ []string) error {
	if err := a.auth.Extend(ctx); err != nil {
		return err
	}
	st := a.auth.Status(ctx)
	a.println("Session extended until " + st.ExpiresAt.Format(time.TimeOnly) + ".")
	return nil
}

// Profile prints the signed-in user as reported by the server.
func (a *App) Profile(ctx context.Context, _ []string) error {
	u, err := a.auth.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "ID:    %d\nName:  %s\nEmail: %s\n", u.ID, u.FullName, u.Email)
	return nil
}

// Status prints the local session state without contacting the server.
func (a *App) Status(ctx context.Context, _ []string) error {
	st := a.auth.Status(ctx)
	switch st.State {
	case session.StateAuthenticated, session.StateWarning:
		who := ""
		if st.User != nil {
			who = st.User.Email
		}
		fmt.Fprintf(a.out, "Signed in as %s (%s storage). Session expires at %s, in %s.\n",
			who, st.Scope, st.ExpiresAt.Format(time.TimeOnly), st.TimeLeft.Round(time.Second))
		if st.State == session.StateWarning {
			a.println("Your session is about to expire; type 'extend' to stay signed in.")
		}
	case session.StateBootstrapping:
		a.println("Restoring session...")
	default:
		if st.LastLogout.IsZero() {
			a.println("Not signed in.")
		} else {
			a.println("Not signed in. Last logout at " + st.LastLogout.Format(time.DateTime) + ".")
		}
	}
	return nil
}

// Expiry asks the server for the authoritative token expiry.
func (a *App) Expiry(ctx context.Context, _ []string) error {
	exp, err := a.auth.Expiry(ctx)
	if err != nil {
		return err
	}
	a.println("Server reports expiry at " + exp.Format(time.TimeOnly) + ".")
	return nil
}

// Attendance lists attendance records.
func (a *App) Attendance(ctx context.Context, _ []string) error {
	records, err := a.attendance.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.println("No attendance records.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTUDENT\tSTATUS")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.SessionID, r.Student, r.Status)
	}
	return tw.Flush()
}
