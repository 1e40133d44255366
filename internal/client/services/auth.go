// Package services contains the application services the CLI talks to. They
// validate user input and delegate to the session manager.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/client/session"
	"github.com/dmitrijs2005/geopresence/internal/common"
)

// ErrInvalidInput wraps validation failures of user-entered values.
var ErrInvalidInput = errors.New("invalid input")

// AuthService defines the session operations of the CLI.
//
// Passwords are taken as byte slices and wiped before the call returns.
type AuthService interface {
	Register(ctx context.Context, fullName, email string, password []byte) error
	Login(ctx context.Context, email string, password []byte, remember bool) error
	Logout(ctx context.Context)
	Extend(ctx context.Context) error
	Profile(ctx context.Context) (*models.User, error)
	Expiry(ctx context.Context) (time.Time, error)
	Status(ctx context.Context) session.Status
	Activity(a session.Activity)
}

// sessionManager is the part of *session.Manager the service needs.
type sessionManager interface {
	Register(ctx context.Context, fullName, email, password string) error
	Login(ctx context.Context, email, password string, remember bool) error
	Logout(ctx context.Context)
	ExtendSession(ctx context.Context) error
	Profile(ctx context.Context) (*models.User, error)
	SyncExpiry(ctx context.Context) (time.Time, error)
	Status(ctx context.Context) session.Status
	Activity(a session.Activity)
}

type authService struct {
	manager sessionManager
}

// NewAuthService binds an AuthService to the session manager.
func NewAuthService(m sessionManager) AuthService {
	return &authService{manager: m}
}

func (a *authService) Register(ctx context.Context, fullName, email string, password []byte) error {
	defer common.WipeByteArray(password)

	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(password) == 0 {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	return a.manager.Register(ctx, fullName, email, string(password))
}

func (a *authService) Login(ctx context.Context, email string, password []byte, remember bool) error {
	defer common.WipeByteArray(password)

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(password) == 0 {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	return a.manager.Login(ctx, email, string(password), remember)
}

func (a *authService) Logout(ctx context.Context) { a.manager.Logout(ctx) }

func (a *authService) Extend(ctx context.Context) error { return a.manager.ExtendSession(ctx) }

func (a *authService) Profile(ctx context.Context) (*models.User, error) {
	return a.manager.Profile(ctx)
}

func (a *authService) Expiry(ctx context.Context) (time.Time, error) {
	return a.manager.SyncExpiry(ctx)
}

func (a *authService) Status(ctx context.Context) session.Status { return a.manager.Status(ctx) }

func (a *authService) Activity(act session.Activity) { a.manager.Activity(act) }

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q is not an email address", ErrInvalidInput, email)
	}
	return strings.ToLower(email), nil
}
