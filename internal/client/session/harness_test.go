package session

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/authtest"
	"github.com/dmitrijs2005/geopresence/internal/client/client"
	"github.com/dmitrijs2005/geopresence/internal/client/crosstab"
	"github.com/dmitrijs2005/geopresence/internal/client/repositories/kv"
	"github.com/dmitrijs2005/geopresence/internal/client/tokenstore"
	"github.com/dmitrijs2005/geopresence/internal/logging"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	testEmail    = "ada@example.com"
	testPassword = "secret"
)

// harness is a fake backend plus a shared durable scope and signal hub, so
// several tabs can be created against the same "browser".
type harness struct {
	t       *testing.T
	clock   *clockwork.FakeClock
	srv     *authtest.Server
	hub     *crosstab.Hub
	durable *kv.MemoryRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	srv := authtest.New(clock, 15*time.Minute, 24*time.Hour)
	t.Cleanup(srv.Close)
	srv.AddUser("Ada Admin", testEmail, testPassword)

	hub := crosstab.NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	return &harness{t: t, clock: clock, srv: srv, hub: hub, durable: kv.NewMemoryRepository()}
}

func testOptions() Options {
	return Options{
		WarningWindow:   5 * time.Minute,
		ExpiryTolerance: 5 * time.Second,
		RefreshMode:     RefreshAuto,
		RequestTimeout:  5 * time.Second,
	}
}

type tab struct {
	*Manager
	store  *tokenstore.Store
	events <-chan Event
}

func (h *harness) newTab(opts Options) *tab {
	h.t.Helper()

	api, err := client.NewHTTPClient(h.srv.URL, 5*time.Second, logging.NewNop())
	require.NoError(h.t, err)

	origin := uuid.NewString()
	store := tokenstore.New(h.durable, kv.NewMemoryRepository(),
		tokenstore.WithNotifier(h.hub, origin),
		tokenstore.WithClock(h.clock),
	)
	m := NewManager(api, store, h.clock, logging.NewNop(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	syncer := crosstab.NewSynchronizer(h.hub, origin, m, logging.NewNop())
	require.NoError(h.t, syncer.Start(ctx))

	events, _ := m.Subscribe(64)
	h.t.Cleanup(func() {
		cancel()
		m.Close()
	})
	return &tab{Manager: m, store: store, events: events}
}

func (tb *tab) login(t *testing.T, remember bool) {
	t.Helper()
	require.NoError(t, tb.Login(context.Background(), testEmail, testPassword, remember))
}

// next returns the next event of kind, skipping others.
func (tb *tab) next(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-tb.events:
			require.True(t, ok, "event channel closed")
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

// quiet asserts that no event arrives for a short while.
func (tb *tab) quiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-tb.events:
		t.Fatalf("unexpected %s event", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func (tb *tab) state() State {
	return tb.Status(context.Background()).State
}

func (tb *tab) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return tb.state() == want },
		3*time.Second, 5*time.Millisecond, "state never became %s", want)
}

// count drains events for a short while and counts those of kind.
func (tb *tab) count(kind EventKind) int {
	n := 0
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-tb.events:
			if ev.Kind == kind {
				n++
			}
		case <-timeout:
			return n
		}
	}
}
