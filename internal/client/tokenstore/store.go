// Package tokenstore persists the credential bundle of the current session
// in one of two scopes: durable (survives restarts, shared by every client
// pointed at the same storage) or ephemeral (private to this client).
//
// Exactly one scope holds live credentials. Durable writes and clears are
// announced to other clients through a crosstab.Notifier.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/crosstab"
	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/client/repositories/kv"
	"github.com/dmitrijs2005/geopresence/internal/logging"
	"github.com/dmitrijs2005/geopresence/internal/timex"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrInvalidBundle means the persisted bundle cannot be decoded, usually
	// an unparsable expiry.
	ErrInvalidBundle = errors.New("tokenstore: invalid credential bundle")
	// ErrNoBundle is returned by UpdateAccess when nothing is stored.
	ErrNoBundle = errors.New("tokenstore: no credential bundle")
)

// Persisted keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiresAt    = "expires_at"
	KeyUser         = "user"
	// KeyLogoutMarker is written to the durable scope on logout (unix millis).
	KeyLogoutMarker = "logout_marker"
)

var credentialKeys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt, KeyUser}

// Scope selects where a bundle lives.
type Scope int

const (
	ScopeDurable Scope = iota + 1
	ScopeEphemeral
)

func (s Scope) String() string {
	switch s {
	case ScopeDurable:
		return "durable"
	case ScopeEphemeral:
		return "ephemeral"
	default:
		return "none"
	}
}

// ScopeFor maps the "remember me" choice to a scope.
func ScopeFor(remember bool) Scope {
	if remember {
		return ScopeDurable
	}
	return ScopeEphemeral
}

// Store reads and writes credential bundles.
type Store struct {
	durable   kv.Repository
	ephemeral kv.Repository
	notifier  crosstab.Notifier
	origin    string
	clock     clockwork.Clock
	log       logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier announces durable changes on n, tagged with origin.
func WithNotifier(n crosstab.Notifier, origin string) Option {
	return func(s *Store) {
		s.notifier = n
		s.origin = origin
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

func New(durable, ephemeral kv.Repository, opts ...Option) *Store {
	s := &Store{
		durable:   durable,
		ephemeral: ephemeral,
		clock:     clockwork.NewRealClock(),
		log:       logging.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) repo(scope Scope) kv.Repository {
	if scope == ScopeDurable {
		return s.durable
	}
	return s.ephemeral
}

// Read returns the stored bundle, preferring the durable scope. A missing
// bundle yields (nil, 0, nil). A bundle that cannot be decoded yields
// ErrInvalidBundle together with the scope it was found in.
func (s *Store) Read(ctx context.Context) (*models.Credentials, Scope, error) {
	for _, scope := range []Scope{ScopeDurable, ScopeEphemeral} {
		values, err := s.repo(scope).List(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %s scope: %w", scope, err)
		}
		creds, err := decode(values)
		if err != nil {
			return nil, scope, fmt.Errorf("%s scope: %w", scope, err)
		}
		if creds != nil {
			return creds, scope, nil
		}
	}
	return nil, 0, nil
}

// Write stores creds in scope and removes any bundle from the other scope.
func (s *Store) Write(ctx context.Context, creds *models.Credentials, scope Scope) error {
	if creds == nil || creds.AccessToken == "" || creds.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: access token and expiry are required", ErrInvalidBundle)
	}
	values, err := encode(creds)
	if err != nil {
		return err
	}

	other := ScopeEphemeral
	if scope != ScopeDurable {
		scope, other = ScopeEphemeral, ScopeDurable
	}
	if err := s.repo(other).Delete(ctx, credentialKeys...); err != nil {
		return fmt.Errorf("failed to clear %s scope: %w", other, err)
	}
	if err := s.repo(scope).SetMany(ctx, values); err != nil {
		return fmt.Errorf("failed to write %s scope: %w", scope, err)
	}

	if scope == ScopeDurable {
		s.publish(ctx, crosstab.SessionExtended, creds.ExpiresAt)
	}
	return nil
}

// UpdateAccess replaces the access token and expiry of the stored bundle in
// place, keeping its scope. An empty token drops the stored one: the access
// token then travels in the cookie jar only. The write only happens while
// the bundle still exists, so a concurrent Clear by another client is not
// undone; ErrNoBundle is returned in that case.
func (s *Store) UpdateAccess(ctx context.Context, token string, expiresAt time.Time) (*models.Credentials, error) {
	creds, scope, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, ErrNoBundle
	}

	updated := creds.WithAccess(token, expiresAt)
	values := map[string][]byte{
		KeyAccessToken: []byte(updated.AccessToken),
		KeyExpiresAt:   []byte(timex.FormatEpoch(updated.ExpiresAt)),
	}
	wrote, err := s.repo(scope).SetIfPresent(ctx, KeyExpiresAt, values)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s scope: %w", scope, err)
	}
	if !wrote {
		return nil, ErrNoBundle
	}

	if scope == ScopeDurable {
		s.publish(ctx, crosstab.SessionExtended, updated.ExpiresAt)
	}
	return updated, nil
}

// Clear removes the bundle from both scopes, records a logout marker and
// announces the logout.
func (s *Store) Clear(ctx context.Context) error {
	err := s.Discard(ctx)

	marker := map[string][]byte{
		KeyLogoutMarker: []byte(strconv.FormatInt(s.clock.Now().UnixMilli(), 10)),
	}
	if mErr := s.durable.SetMany(ctx, marker); mErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to write logout marker: %w", mErr))
	}

	s.publish(ctx, crosstab.LoggedOut, time.Time{})
	return err
}

// Discard removes the bundle from both scopes silently. It is used when
// another client already announced the logout, or the bundle is corrupt.
func (s *Store) Discard(ctx context.Context) error {
	var errs []error
	for _, scope := range []Scope{ScopeDurable, ScopeEphemeral} {
		if err := s.repo(scope).Delete(ctx, credentialKeys...); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear %s scope: %w", scope, err))
		}
	}
	return errors.Join(errs...)
}

// LastLogout returns the time of the last recorded logout, or zero.
func (s *Store) LastLogout(ctx context.Context) (time.Time, error) {
	values, err := s.durable.List(ctx)
	if err != nil {
		return time.Time{}, err
	}
	raw, ok := values[KeyLogoutMarker]
	if !ok {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func (s *Store) publish(ctx context.Context, kind crosstab.Kind, expiresAt time.Time) {
	if s.notifier == nil {
		return
	}
	sig := crosstab.Signal{Kind: kind, Origin: s.origin, ExpiresAt: expiresAt, At: s.clock.Now()}
	if err := s.notifier.Publish(ctx, sig); err != nil {
		s.log.Warn(ctx, "failed to publish signal", "kind", kind, "error", err)
	}
}

func encode(creds *models.Credentials) (map[string][]byte, error) {
	values := map[string][]byte{
		KeyAccessToken:  []byte(creds.AccessToken),
		KeyRefreshToken: []byte(creds.RefreshToken),
		KeyExpiresAt:    []byte(timex.FormatEpoch(creds.ExpiresAt)),
		KeyUser:         []byte("null"),
	}
	if creds.User != nil {
		u, err := json.Marshal(creds.User)
		if err != nil {
			return nil, fmt.Errorf("failed to encode user: %w", err)
		}
		values[KeyUser] = u
	}
	return values, nil
}

// decode returns nil when the scope holds neither an access token nor an
// expiry. A bundle whose access token was rotated into the cookie jar keeps
// only its expiry.
func decode(values map[string][]byte) (*models.Credentials, error) {
	access := string(values[KeyAccessToken])
	if access == "" && len(values[KeyExpiresAt]) == 0 {
		return nil, nil
	}

	exp, err := timex.ParseEpoch(string(values[KeyExpiresAt]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}

	creds := &models.Credentials{
		AccessToken:  access,
		RefreshToken: string(values[KeyRefreshToken]),
		ExpiresAt:    exp,
	}
	if raw := values[KeyUser]; len(raw) > 0 {
		var u *models.User
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("%w: user: %v", ErrInvalidBundle, err)
		}
		creds.User = u
	}
	return creds, nil
}
