// Package session implements the client-side session lifecycle: it tracks
// the access token's expiry, warns before it runs out, refreshes it silently
// (proactively, on demand or after a 401), logs out idle users and keeps
// several clients sharing one credential store consistent.
//
// A Manager owns one session. Its timers are Go timers whose callbacks run
// on their own goroutines; the Manager serializes them with a mutex and
// discards callbacks that belong to a superseded session (tracked by a
// generation counter). Network and store I/O never happens under that mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/client"
	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/client/tokenstore"
	"github.com/dmitrijs2005/geopresence/internal/logging"
	"github.com/jonboulle/clockwork"
)

// Manager orchestrates one session.
type Manager struct {
	api   client.Client
	store *tokenstore.Store
	clock clockwork.Clock
	log   logging.Logger
	opts  Options

	timers    *timerSet
	scheduler *Scheduler
	idle      *IdleMonitor
	refresher *Refresher
	events    broadcaster

	// ioMu orders store writes of this manager: a refresh commit and the
	// clear that follows a logout never interleave.
	ioMu sync.Mutex

	mu      sync.Mutex
	state   State
	active  bool
	gen     uint64
	epoch   time.Time
	started time.Time
	user    *models.User
	scope   tokenstore.Scope
	closed  bool
}

// NewManager creates a manager in the Bootstrapping state. Call Bootstrap to
// restore a persisted session or Login to start one.
func NewManager(api client.Client, store *tokenstore.Store, clock clockwork.Clock, log logging.Logger, opts Options) *Manager {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.RefreshMode == "" {
		opts.RefreshMode = RefreshAuto
	}

	m := &Manager{
		api:    api,
		store:  store,
		clock:  clock,
		log:    log,
		opts:   opts,
		timers: newTimerSet(clock),
		state:  StateBootstrapping,
	}
	m.scheduler = &Scheduler{
		timers:      m.timers,
		clock:       clock,
		window:      opts.WarningWindow,
		autoRefresh: opts.AutoRefreshBefore,
		onWarning:   m.onWarning,
		onExpiry:    m.onExpiry,
		onRefresh:   m.onAutoRefresh,
	}
	m.idle = &IdleMonitor{
		timers:    m.timers,
		clock:     clock,
		timeout:   opts.IdleTimeout,
		warning:   opts.IdleWarning,
		onWarning: m.onIdleWarning,
		onIdle:    m.onIdle,
	}
	m.refresher = &Refresher{
		api:     api,
		store:   store,
		mode:    opts.RefreshMode,
		timeout: opts.RequestTimeout,
		target:  m,
		log:     log,
	}
	return m
}

// Subscribe returns a channel of lifecycle events with the given buffer and
// a func that ends the subscription.
func (m *Manager) Subscribe(buf int) (<-chan Event, func()) {
	return m.events.subscribe(buf)
}

func (m *Manager) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = m.clock.Now()
	}
	m.events.emit(ev)
}

// Status returns a snapshot of the session.
func (m *Manager) Status(ctx context.Context) Status {
	m.mu.Lock()
	st := Status{
		State:     m.state,
		User:      m.user,
		Scope:     m.scope,
		ExpiresAt: m.epoch,
	}
	if m.active {
		st.TimeLeft = max(m.epoch.Sub(m.clock.Now()), 0)
		st.LastActivity = m.idle.LastActivity()
	}
	m.mu.Unlock()

	last, err := m.store.LastLogout(ctx)
	if err != nil {
		m.log.Debug(ctx, "logout marker unavailable", "error", err)
	}
	st.LastLogout = last
	return st
}

// Bootstrap restores the persisted session, if any. A missing or corrupt
// bundle leaves the manager LoggedOut without touching the network. A bundle
// that is past its expiry is logged out. Otherwise the timers are armed and
// the profile is fetched, refreshing once on a 401; any failure there ends
// the session. Only storage failures are returned.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.state = StateBootstrapping
	m.mu.Unlock()

	creds, scope, err := m.store.Read(ctx)
	switch {
	case errors.Is(err, tokenstore.ErrInvalidBundle):
		m.log.Warn(ctx, "discarding invalid stored session", "scope", scope, "error", err)
		m.ioMu.Lock()
		if dErr := m.store.Discard(ctx); dErr != nil {
			m.log.Error(ctx, "failed to discard invalid session", "error", dErr)
		}
		m.ioMu.Unlock()
		m.setLoggedOut()
		return nil
	case err != nil:
		m.setLoggedOut()
		return fmt.Errorf("restore session: %w", err)
	case creds == nil:
		m.setLoggedOut()
		return nil
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.active = true
	m.epoch = creds.ExpiresAt
	m.started = m.clock.Now()
	m.user = creds.User
	m.scope = scope
	scheduled := m.scheduler.Schedule(creds.ExpiresAt, gen)
	if scheduled {
		m.idle.Arm(gen)
	}
	m.mu.Unlock()

	if !scheduled {
		m.log.Info(ctx, "stored session already expired", "expires_at", creds.ExpiresAt)
		m.endSession(ctx, ReasonExpired, m.sameGen(gen))
		return nil
	}

	if _, err := m.Profile(ctx); err != nil {
		m.log.Warn(ctx, "session restore failed", "error", err)
		m.endSession(ctx, ReasonRestoreFailed, m.sameGen(gen))
		return nil
	}

	m.mu.Lock()
	if m.gen == gen && m.state == StateBootstrapping {
		m.state = StateAuthenticated
	}
	m.mu.Unlock()
	m.log.Info(ctx, "session restored", "scope", scope, "expires_at", creds.ExpiresAt)
	return nil
}

func (m *Manager) setLoggedOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		m.state = StateLoggedOut
	}
}

// Login authenticates and starts a new session in the scope chosen by
// remember. On failure the previous state is kept.
func (m *Manager) Login(ctx context.Context, email, password string, remember bool) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	creds := resp.Credentials()
	if creds.ExpiresAt.IsZero() {
		if creds.ExpiresAt, err = m.api.TokenExpiry(ctx, creds.AccessToken); err != nil {
			return fmt.Errorf("login: expiry lookup: %w", err)
		}
	}
	if !creds.ExpiresAt.After(m.clock.Now()) {
		return fmt.Errorf("login: %w: token expires at %s", ErrSessionExpired, creds.ExpiresAt)
	}

	scope := tokenstore.ScopeFor(remember)

	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	if err := m.store.Write(ctx, creds, scope); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.active = true
	m.state = StateAuthenticated
	m.epoch = creds.ExpiresAt
	m.started = m.clock.Now()
	m.user = creds.User
	m.scope = scope
	if !m.scheduler.Schedule(creds.ExpiresAt, gen) {
		m.endLocked()
		m.mu.Unlock()
		if err := m.store.Discard(ctx); err != nil {
			m.log.Error(ctx, "failed to discard expired session", "error", err)
		}
		m.emit(Event{Kind: EventLoggedOut, Reason: ReasonExpired})
		return fmt.Errorf("login: %w", ErrSessionExpired)
	}
	m.idle.Arm(gen)
	m.mu.Unlock()

	m.log.Info(ctx, "logged in", "scope", scope, "expires_at", creds.ExpiresAt)
	return nil
}

// Register creates an account. It does not start a session.
func (m *Manager) Register(ctx context.Context, fullName, email, password string) error {
	return m.api.Register(ctx, fullName, email, password)
}

// Logout ends the session. Timers stop and the state becomes LoggedOut
// before any I/O; the store is then cleared (announcing the logout to other
// clients) and the backend is told on a best-effort basis. Calling it again
// is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	m.endSession(ctx, ReasonUser, nil)
}

// ExtendSession refreshes the access token. On failure the session ends
// and ErrSessionExpired is returned.
func (m *Manager) ExtendSession(ctx context.Context) error {
	gen, ok := m.generation()
	if !ok {
		return ErrNotAuthenticated
	}
	if _, err := m.refresher.Refresh(ctx); err != nil {
		return m.refreshFailed(ctx, gen, err)
	}

	// A backend that caps the session may hand back an expiry the guard
	// rejects. The extension still succeeded, so the warning is withdrawn.
	m.mu.Lock()
	withdrawn := m.gen == gen && m.active && m.state == StateWarning
	if withdrawn {
		m.state = StateAuthenticated
	}
	exp := m.epoch
	m.mu.Unlock()
	if withdrawn {
		m.emit(Event{Kind: EventSessionExtended, ExpiresAt: exp})
	}
	return nil
}

// Activity records user input for idle tracking.
func (m *Manager) Activity(a Activity) {
	m.idle.Signal(a)
}

// Profile fetches the signed-in user's profile.
func (m *Manager) Profile(ctx context.Context) (*models.User, error) {
	var user *models.User
	gen, err := m.withReauth(ctx, func(token string) error {
		u, err := m.api.Profile(ctx, token)
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.gen == gen && m.active {
		m.user = user
	}
	m.mu.Unlock()
	return user, nil
}

// SyncExpiry asks the backend for the access token's expiry and adopts it if
// it is later than the current one. It returns the expiry in effect.
func (m *Manager) SyncExpiry(ctx context.Context) (time.Time, error) {
	var exp time.Time
	gen, err := m.withReauth(ctx, func(token string) error {
		e, err := m.api.TokenExpiry(ctx, token)
		exp = e
		return err
	})
	if err != nil {
		return time.Time{}, err
	}

	extended, current := m.updateExpiry(gen, exp)
	if extended {
		m.emit(Event{Kind: EventSessionExtended, ExpiresAt: current})
	}
	return current, nil
}

// Call performs an authorized JSON request. A 401 triggers one refresh and
// one retry; if that fails too the session ends with ErrSessionExpired.
func (m *Manager) Call(ctx context.Context, method, path string, in, out any) error {
	_, err := m.withReauth(ctx, func(token string) error {
		return m.api.Call(ctx, token, method, path, in, out)
	})
	return err
}

// HandleRemoteLogout reacts to another client's logout: local state and
// timers are dropped without calling the backend or announcing anything.
// Logouts older than the current session are ignored.
func (m *Manager) HandleRemoteLogout(ctx context.Context, at time.Time) {
	m.mu.Lock()
	if m.state == StateLoggedOut || (!at.IsZero() && at.Before(m.started)) {
		m.mu.Unlock()
		return
	}
	m.endLocked()
	m.mu.Unlock()

	m.teardown(ctx, ReasonRemote, true)
}

// HandleRemoteExpiry adopts an expiry written by another client, subject to
// the monotonicity guard.
func (m *Manager) HandleRemoteExpiry(ctx context.Context, expiresAt time.Time) {
	gen, ok := m.generation()
	if !ok {
		return
	}
	if extended, current := m.updateExpiry(gen, expiresAt); extended {
		m.log.Debug(ctx, "adopted expiry from another client", "expires_at", current)
		m.emit(Event{Kind: EventSessionExtended, ExpiresAt: current})
	}
}

// Close stops all timers and event subscriptions without changing the
// stored session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.scheduler.Cancel()
	m.idle.Disarm()
	m.timers.cancelAll()
	m.mu.Unlock()

	m.events.close()
}

func (m *Manager) generation() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen, m.active && !m.closed
}

func (m *Manager) sameGen(gen uint64) func() bool {
	return func() bool { return m.gen == gen }
}

// updateExpiry applies the monotonicity guard: exp is adopted only if it is
// later than the current epoch by more than ExpiryTolerance.
func (m *Manager) updateExpiry(gen uint64, exp time.Time) (bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || !m.active || m.closed {
		return false, m.epoch
	}
	if !m.epoch.IsZero() && exp.Sub(m.epoch) <= m.opts.ExpiryTolerance {
		return false, m.epoch
	}
	if !exp.After(m.clock.Now()) {
		return false, m.epoch
	}
	m.scheduler.Schedule(exp, gen)
	m.epoch = exp
	if m.state == StateWarning {
		m.state = StateAuthenticated
	}
	return true, exp
}

// commitRefresh stores a refreshed access token for gen and re-arms the
// timers. It reports ErrNotAuthenticated when the session changed meanwhile.
func (m *Manager) commitRefresh(ctx context.Context, gen uint64, token string, exp time.Time) (*models.Credentials, error) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	if cur, ok := m.generation(); !ok || cur != gen {
		return nil, ErrNotAuthenticated
	}

	creds, err := m.store.UpdateAccess(ctx, token, exp)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	if extended, current := m.updateExpiry(gen, exp); extended {
		m.emit(Event{Kind: EventSessionExtended, ExpiresAt: current})
	}
	return creds, nil
}

// withReauth runs fn with the stored access token. A 401 triggers one
// refresh and one retry with the new token.
func (m *Manager) withReauth(ctx context.Context, fn func(token string) error) (uint64, error) {
	gen, ok := m.generation()
	if !ok {
		return 0, ErrNotAuthenticated
	}
	creds, _, err := m.store.Read(ctx)
	if err != nil {
		return gen, err
	}
	if creds == nil {
		return gen, ErrNotAuthenticated
	}

	err = fn(creds.AccessToken)
	if !errors.Is(err, client.ErrUnauthorized) {
		return gen, err
	}

	m.log.Debug(ctx, "access token rejected, refreshing")
	updated, err := m.refresher.Refresh(ctx)
	if err != nil {
		return gen, m.refreshFailed(ctx, gen, err)
	}

	err = fn(updated.AccessToken)
	if errors.Is(err, client.ErrUnauthorized) {
		m.endSession(ctx, ReasonUnauthorized, m.sameGen(gen))
		return gen, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return gen, err
}

// refreshFailed ends the session gen after a failed refresh, unless the
// caller merely gave up waiting.
func (m *Manager) refreshFailed(ctx context.Context, gen uint64, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	m.endSession(ctx, ReasonRefreshFailed, m.sameGen(gen))
	return fmt.Errorf("%w: %w", ErrSessionExpired, err)
}

// endSession moves to LoggedOut if the session is live and guard (checked
// under the lock) holds, then clears the store and tells the backend.
func (m *Manager) endSession(ctx context.Context, reason Reason, guard func() bool) bool {
	m.mu.Lock()
	if m.state == StateLoggedOut || (guard != nil && !guard()) {
		m.mu.Unlock()
		return false
	}
	m.endLocked()
	m.mu.Unlock()

	m.teardown(ctx, reason, false)
	return true
}

// endLocked is the synchronous part of every logout.
func (m *Manager) endLocked() {
	m.state = StateLoggedOut
	m.active = false
	m.gen++
	m.epoch = time.Time{}
	m.user = nil
	m.scope = 0
	m.scheduler.Cancel()
	m.idle.Disarm()
}

func (m *Manager) teardown(ctx context.Context, reason Reason, remote bool) {
	ctx = context.WithoutCancel(ctx)

	m.ioMu.Lock()
	creds, _, _ := m.store.Read(ctx)
	var err error
	if remote {
		err = m.store.Discard(ctx)
	} else {
		err = m.store.Clear(ctx)
	}
	m.ioMu.Unlock()
	if err != nil {
		m.log.Error(ctx, "failed to clear stored session", "error", err)
	}

	m.log.Info(ctx, "logged out", "reason", reason)
	m.emit(Event{Kind: EventLoggedOut, Reason: reason})

	if remote || creds == nil {
		return
	}
	lctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	if err := m.api.Logout(lctx, creds.AccessToken); err != nil {
		m.log.Warn(ctx, "logout request failed", "error", err)
	}
}

func (m *Manager) onWarning(gen uint64, exp time.Time) {
	m.mu.Lock()
	if gen != m.gen || !m.active || m.closed || !m.epoch.Equal(exp) || m.state == StateWarning {
		m.mu.Unlock()
		return
	}
	m.state = StateWarning
	m.mu.Unlock()

	m.log.Info(context.Background(), "session expires soon", "expires_at", exp)
	m.emit(Event{Kind: EventSessionWarning, ExpiresAt: exp})
}

func (m *Manager) onExpiry(gen uint64, exp time.Time) {
	m.endSession(context.Background(), ReasonExpired, func() bool {
		// A later expiry adopted after this timer fired wins.
		return gen == m.gen && !m.closed && m.epoch.Equal(exp)
	})
}

func (m *Manager) onAutoRefresh(gen uint64) {
	if cur, ok := m.generation(); !ok || cur != gen {
		return
	}
	ctx := context.Background()
	if _, err := m.refresher.Refresh(ctx); err != nil {
		_ = m.refreshFailed(ctx, gen, err)
	}
}

func (m *Manager) onIdleWarning(gen uint64, logoutAt time.Time) {
	if cur, ok := m.generation(); !ok || cur != gen {
		return
	}
	m.emit(Event{Kind: EventIdleWarning, LogoutAt: logoutAt})
}

func (m *Manager) onIdle(gen uint64) {
	m.endSession(context.Background(), ReasonIdle, func() bool {
		return gen == m.gen && !m.closed && m.idle.Idle(m.clock.Now())
	})
}
