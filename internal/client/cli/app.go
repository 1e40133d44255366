package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/services"
	"github.com/dmitrijs2005/geopresence/internal/client/session"
	"github.com/dmitrijs2005/geopresence/internal/logging"
	"github.com/jonboulle/clockwork"
)

// App is the interactive client.
type App struct {
	auth       services.AuthService
	attendance services.AttendanceService
	events     <-chan session.Event
	clock      clockwork.Clock
	countdown  time.Duration
	log        logging.Logger

	reader *bufio.Reader
	out    io.Writer

	// fd is the terminal passwords are read from, -1 when in is not a file.
	fd int
}

// NewApp builds an App reading commands from in and writing to out. events
// is a session subscription; countdown is the interval of the warning
// countdown, zero disables it.
func NewApp(auth services.AuthService, attendance services.AttendanceService, events <-chan session.Event,
	clock clockwork.Clock, countdown time.Duration, in io.Reader, out io.Writer, log logging.Logger) *App {
	fd := -1
	if f, ok := in.(*os.File); ok {
		fd = int(f.Fd())
	}
	return &App{
		auth:       auth,
		attendance: attendance,
		events:     events,
		clock:      clock,
		countdown:  countdown,
		log:        log,
		reader:     bufio.NewReader(in),
		out:        &syncWriter{w: out},
		fd:         fd,
	}
}

// Run prints the current status, starts the event printer and countdown,
// and runs the REPL until exit or end of input.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.printEvents(ctx)
	}()
	if a.countdown > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runCountdown(ctx)
		}()
	}

	a.println("Welcome to geopresence (type 'help' for commands)")
	_ = a.Status(ctx, nil)
	runREPL(ctx, a, a.prompt, a.reader, a.out)

	cancel()
	wg.Wait()
}

func (a *App) isLoggedIn(ctx context.Context) bool {
	switch a.auth.Status(ctx).State {
	case session.StateAuthenticated, session.StateWarning:
		return true
	default:
		return false
	}
}

func (a *App) touch() { a.auth.Activity(session.KeyPress) }

// prompt shows the signed-in user and the time left.
func (a *App) prompt() string {
	st := a.auth.Status(context.Background())
	if st.State != session.StateAuthenticated && st.State != session.StateWarning {
		return "geo> "
	}
	who := "?"
	if st.User != nil {
		who = st.User.Email
	}
	return fmt.Sprintf("geo (%s %s)> ", who, st.TimeLeft.Round(time.Second))
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

// syncWriter serializes writes from the REPL and the event printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
