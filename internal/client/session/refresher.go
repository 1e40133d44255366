package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/client"
	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/client/tokenstore"
	"github.com/dmitrijs2005/geopresence/internal/logging"
	"golang.org/x/sync/singleflight"
)

// RefreshMode selects how the refresh endpoint is authenticated.
type RefreshMode string

const (
	// RefreshAuto tries the refresh cookie, then the stored refresh token.
	RefreshAuto   RefreshMode = "auto"
	RefreshCookie RefreshMode = "cookie"
	RefreshBearer RefreshMode = "bearer"
)

// ParseRefreshMode accepts the names above, case-insensitively. Empty means
// auto.
func ParseRefreshMode(s string) (RefreshMode, error) {
	switch m := RefreshMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return RefreshAuto, nil
	case RefreshAuto, RefreshCookie, RefreshBearer:
		return m, nil
	default:
		return "", fmt.Errorf("unknown refresh mode %q", s)
	}
}

// refreshTarget is the session a refresh commits into.
type refreshTarget interface {
	// generation returns the live session's generation, false when none.
	generation() (uint64, bool)
	// commitRefresh stores the new access token if gen is still current.
	commitRefresh(ctx context.Context, gen uint64, token string, expiresAt time.Time) (*models.Credentials, error)
}

// Refresher performs token refreshes with at most one request in flight.
// Concurrent callers share the result of the pending one.
type Refresher struct {
	api     client.Client
	store   *tokenstore.Store
	mode    RefreshMode
	timeout time.Duration
	target  refreshTarget
	log     logging.Logger

	group singleflight.Group
}

// Refresh returns the refreshed bundle. Failure is not retried. The shared
// request outlives a cancelled caller, bounded by the request timeout.
func (r *Refresher) Refresh(ctx context.Context) (*models.Credentials, error) {
	ch := r.group.DoChan("refresh", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(fctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Credentials), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Refresher) refresh(ctx context.Context) (*models.Credentials, error) {
	gen, ok := r.target.generation()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	creds, _, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, ErrNotAuthenticated
	}

	resp, err := r.exchange(ctx, creds)
	if err != nil {
		r.log.Warn(ctx, "token refresh failed", "mode", r.mode, "error", err)
		return nil, fmt.Errorf("refresh: %w", err)
	}

	// Without an access token in the response the backend rotated the
	// access cookie; the stored token is stale and must not be sent.
	exp := resp.Expiry()
	if exp.IsZero() {
		if exp, err = r.api.TokenExpiry(ctx, resp.AccessToken); err != nil {
			return nil, fmt.Errorf("refresh: expiry lookup: %w", err)
		}
	}

	updated, err := r.target.commitRefresh(ctx, gen, resp.AccessToken, exp)
	if err != nil {
		return nil, err
	}
	r.log.Info(ctx, "token refreshed", "expires_at", exp)
	return updated, nil
}

func (r *Refresher) exchange(ctx context.Context, creds *models.Credentials) (*client.RefreshResponse, error) {
	switch r.mode {
	case RefreshCookie:
		return r.api.RefreshWithCookie(ctx)
	case RefreshBearer:
		return r.api.RefreshWithBearer(ctx, creds.RefreshToken)
	}

	resp, err := r.api.RefreshWithCookie(ctx)
	if err == nil {
		return resp, nil
	}
	if creds.RefreshToken == "" || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	r.log.Debug(ctx, "cookie refresh failed, trying bearer", "error", err)
	return r.api.RefreshWithBearer(ctx, creds.RefreshToken)
}
