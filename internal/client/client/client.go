package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/timex"
)

// Client is the contract of the authentication backend. An empty accessToken
// sends no Authorization header; the access cookie authenticates instead.
type Client interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	Register(ctx context.Context, fullName, email, password string) error
	Logout(ctx context.Context, accessToken string) error
	// RefreshWithCookie refreshes using the HTTP-only refresh cookie.
	RefreshWithCookie(ctx context.Context) (*RefreshResponse, error)
	// RefreshWithBearer refreshes by presenting the refresh token.
	RefreshWithBearer(ctx context.Context, refreshToken string) (*RefreshResponse, error)
	Profile(ctx context.Context, accessToken string) (*models.User, error)
	TokenExpiry(ctx context.Context, accessToken string) (time.Time, error)
	// Call performs an authorized JSON request against path.
	Call(ctx context.Context, accessToken, method, path string, in, out any) error
}

type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	AccessExp    timex.Epoch  `json:"access_exp"`
	RefreshExp   timex.Epoch  `json:"refresh_exp"`
	User         *models.User `json:"user"`
}

// Credentials converts the response into a bundle. The access token's exp
// claim fills in a missing access_exp.
func (r *LoginResponse) Credentials() *models.Credentials {
	exp := r.AccessExp.Time
	if exp.IsZero() {
		exp = ExpiryFromJWT(r.AccessToken)
	}
	return &models.Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    exp,
		User:         r.User,
	}
}

// RefreshResponse covers both refresh shapes: {access_exp, refresh_exp} for
// the cookie form and {access_token, expires_at} for the bearer form.
type RefreshResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   timex.Epoch `json:"expires_at"`
	AccessExp   timex.Epoch `json:"access_exp"`
	RefreshExp  timex.Epoch `json:"refresh_exp"`
}

// Expiry returns the new access expiry, falling back to the token's exp
// claim. It is zero when neither is known.
func (r *RefreshResponse) Expiry() time.Time {
	switch {
	case !r.AccessExp.IsZero():
		return r.AccessExp.Time
	case !r.ExpiresAt.IsZero():
		return r.ExpiresAt.Time
	default:
		return ExpiryFromJWT(r.AccessToken)
	}
}

type tokenExpiryResponse struct {
	AccessExp timex.Epoch `json:"access_exp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
