package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/authtest"
	"github.com/dmitrijs2005/geopresence/internal/client/client"
	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/client/repositories/kv"
	"github.com/dmitrijs2005/geopresence/internal/client/services"
	"github.com/dmitrijs2005/geopresence/internal/client/session"
	"github.com/dmitrijs2005/geopresence/internal/client/tokenstore"
	"github.com/dmitrijs2005/geopresence/internal/logging"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeAuth is a scripted AuthService.
type fakeAuth struct {
	mu sync.Mutex

	regName, regEmail string
	regPass           []byte
	regErr            error

	loginEmail    string
	loginPass     []byte
	loginRemember bool
	loginErr      error

	logouts    int
	activities int
	status     session.Status
	user       *models.User
}

func (f *fakeAuth) Register(_ context.Context, name, email string, pass []byte) error {
	f.regName, f.regEmail, f.regPass = name, email, append([]byte(nil), pass...)
	return f.regErr
}

func (f *fakeAuth) Login(_ context.Context, email string, pass []byte, remember bool) error {
	f.loginEmail, f.loginPass, f.loginRemember = email, append([]byte(nil), pass...), remember
	return f.loginErr
}

func (f *fakeAuth) Logout(context.Context) { f.logouts++ }
func (f *fakeAuth) Extend(context.Context) error { return nil }

func (f *fakeAuth) Profile(context.Context) (*models.User, error) {
	if f.user == nil {
		return nil, session.ErrNotAuthenticated
	}
	return f.user, nil
}

func (f *fakeAuth) Expiry(context.Context) (time.Time, error) { return f.status.ExpiresAt, nil }

func (f *fakeAuth) Status(context.Context) session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeAuth) setStatus(st session.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
}

func (f *fakeAuth) Activity(session.Activity) { f.activities++ }

func newTestApp(auth services.AuthService, input string) (*App, *safeBuffer) {
	out := &safeBuffer{}
	a := NewApp(auth, nil, nil, clockwork.NewFakeClockAt(t0), 0, strings.NewReader(input), out, logging.NewNop())
	return a, out
}

func stubInputs(t *testing.T, texts []string, password string, remember bool) {
	t.Helper()
	origST, origGP, origC := getSimpleText, getPassword, confirm
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) {
		v := texts[0]
		texts = texts[1:]
		return v, nil
	}
	getPassword = func(_ *bufio.Reader, _ io.Writer, _ int) ([]byte, error) { return []byte(password), nil }
	confirm = func(_ *bufio.Reader, _ string, _ io.Writer) (bool, error) { return remember, nil }
	t.Cleanup(func() { getSimpleText, getPassword, confirm = origST, origGP, origC })
}

func TestApp_Register(t *testing.T) {
	stubInputs(t, []string{"Ada Lovelace", "ada@example.com"}, "secret", false)
	f := &fakeAuth{}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Register(context.Background(), nil))
	assert.Equal(t, "Ada Lovelace", f.regName)
	assert.Equal(t, "ada@example.com", f.regEmail)
	assert.Equal(t, []byte("secret"), f.regPass)
	assert.Contains(t, out.String(), "Registration successful")
}

func TestApp_LoginRememberFlagSkipsQuestion(t *testing.T) {
	stubInputs(t, []string{"ada@example.com"}, "secret", false)
	f := &fakeAuth{status: session.Status{State: session.StateAuthenticated, User: &models.User{FullName: "Ada"}}}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Login(context.Background(), []string{"-r"}))
	assert.True(t, f.loginRemember)
	assert.Equal(t, []byte("secret"), f.loginPass)
	assert.Contains(t, out.String(), "Welcome, Ada!")
}

func TestApp_LoginAsksToRemember(t *testing.T) {
	for _, remember := range []bool{true, false} {
		stubInputs(t, []string{"ada@example.com"}, "secret", remember)
		f := &fakeAuth{}
		a, out := newTestApp(f, "")

		require.NoError(t, a.Login(context.Background(), nil))
		assert.Equal(t, remember, f.loginRemember)
		assert.Contains(t, out.String(), "Welcome, ada@example.com!")
	}
}

func TestApp_LoginFailure(t *testing.T) {
	stubInputs(t, []string{"ada@example.com"}, "wrong", false)
	f := &fakeAuth{loginErr: &client.APIError{Status: 401, Message: "Bad credentials"}}
	a, out := newTestApp(f, "")

	err := a.Login(context.Background(), []string{"--remember"})
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.NotContains(t, out.String(), "Welcome")
}

func TestApp_StatusAndPrompt(t *testing.T) {
	f := &fakeAuth{status: session.Status{State: session.StateLoggedOut}}
	a, out := newTestApp(f, "")
	ctx := context.Background()

	require.NoError(t, a.Status(ctx, nil))
	assert.Contains(t, out.String(), "Not signed in.")
	assert.Equal(t, "geo> ", a.prompt())

	f.setStatus(session.Status{
		State:     session.StateWarning,
		User:      &models.User{Email: "ada@example.com"},
		Scope:     tokenstore.ScopeEphemeral,
		ExpiresAt: t0.Add(4 * time.Minute),
		TimeLeft:  4*time.Minute + 400*time.Millisecond,
	})
	require.NoError(t, a.Status(ctx, nil))
	assert.Contains(t, out.String(), "Signed in as ada@example.com (ephemeral storage). Session expires at 09:04:00, in 4m0s.")
	assert.Contains(t, out.String(), "type 'extend'")
	assert.Equal(t, "geo (ada@example.com 4m0s)> ", a.prompt())
	assert.True(t, a.isLoggedIn(ctx))
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		ev   session.Event
		want string
	}{
		{
			session.Event{Kind: session.EventSessionWarning, ExpiresAt: t0.Add(5 * time.Minute)},
			"! Your session expires at 09:05:00 (in 5m0s). Type 'extend' to stay signed in.",
		},
		{
			session.Event{Kind: session.EventSessionExtended, ExpiresAt: t0.Add(15 * time.Minute)},
			"Session extended until 09:15:00.",
		},
		{
			session.Event{Kind: session.EventIdleWarning, LogoutAt: t0.Add(2 * time.Minute)},
			"! No activity detected. You will be logged out at 09:02:00 unless you type something.",
		},
		{session.Event{Kind: session.EventLoggedOut, Reason: session.ReasonIdle}, "You were logged out due to inactivity."},
		{session.Event{Kind: session.EventLoggedOut, Reason: session.ReasonRemote}, "You were logged out in another window."},
		{session.Event{Kind: session.EventLoggedOut, Reason: "weird"}, "Logged out (weird)."},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatEvent(tt.ev, t0))
		})
	}
}

func TestApp_PrintEvents(t *testing.T) {
	events := make(chan session.Event, 1)
	out := &safeBuffer{}
	a := NewApp(&fakeAuth{}, nil, events, clockwork.NewFakeClockAt(t0), 0, strings.NewReader(""), out, logging.NewNop())

	done := make(chan struct{})
	go func() {
		a.printEvents(context.Background())
		close(done)
	}()
	events <- session.Event{Kind: session.EventLoggedOut, Reason: session.ReasonExpired}
	close(events)
	<-done

	assert.Contains(t, out.String(), "Your session has expired. Please log in again.")
}

func TestApp_CountdownOnlyInWarning(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	f := &fakeAuth{status: session.Status{State: session.StateAuthenticated, TimeLeft: 10 * time.Minute}}
	out := &safeBuffer{}
	a := NewApp(f, nil, nil, clock, 30*time.Second, strings.NewReader(""), out, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.runCountdown(ctx)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.NotContains(t, out.String(), "Session expires in")

	f.setStatus(session.Status{State: session.StateWarning, TimeLeft: 90 * time.Second})
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Session expires in 1m30s.")
	}, time.Second, time.Millisecond)
}

func TestApp_RunAgainstBackend(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	srv := authtest.New(clock, 15*time.Minute, 24*time.Hour)
	t.Cleanup(srv.Close)
	srv.AddUser("Ada Admin", "ada@example.com", "secret")

	api, err := client.NewHTTPClient(srv.URL, 5*time.Second, logging.NewNop())
	require.NoError(t, err)
	store := tokenstore.New(kv.NewMemoryRepository(), kv.NewMemoryRepository(), tokenstore.WithClock(clock))
	opts := session.DefaultOptions()
	opts.IdleTimeout = 0
	m := session.NewManager(api, store, clock, logging.NewNop(), opts)
	t.Cleanup(m.Close)
	require.NoError(t, m.Bootstrap(context.Background()))

	events, unsubscribe := m.Subscribe(16)
	defer unsubscribe()

	input := strings.Join([]string{
		"login -r",
		"ada@example.com",
		"secret",
		"status",
		"attendance",
		"logout",
		"status",
		"exit",
	}, "\n") + "\n"
	out := &safeBuffer{}
	a := NewApp(services.NewAuthService(m), services.NewAttendanceService(m), events, clock, 0,
		strings.NewReader(input), out, logging.NewNop())
	a.Run(context.Background())

	text := out.String()
	assert.Contains(t, text, "Not signed in.")
	assert.Contains(t, text, "Welcome, Ada Admin!")
	assert.Contains(t, text, "geo (ada@example.com 15m0s)> ")
	assert.Contains(t, text, "Signed in as ada@example.com (durable storage)")
	assert.Contains(t, text, "S001")
	assert.Contains(t, text, "Last logout at")
	assert.Contains(t, text, "Bye!")
	assert.EqualValues(t, 1, srv.Calls.Logout.Load())
}
