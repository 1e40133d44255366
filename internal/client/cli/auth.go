package cli

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/geopresence/internal/common"
)

// getSimpleText, getPassword and confirm are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	confirm       = Confirm
)

// Register prompts for full name, email and password and creates the
// account. It does not log in.
func (a *App) Register(ctx context.Context, _ []string) error {
	fullName, err := getSimpleText(a.reader, "Enter full name", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out, a.fd)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Register(ctx, fullName, email, password); err != nil {
		return err
	}
	a.println("Registration successful, you can log in now.")
	return nil
}

// Login prompts for credentials and starts a session. With -r or
// --remember the session is kept on this device; otherwise the user is
// asked.
func (a *App) Login(ctx context.Context, args []string) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out, a.fd)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	remember := slices.Contains(args, "-r") || slices.Contains(args, "--remember")
	if !remember {
		if remember, err = confirm(a.reader, "Keep me signed in on this device?", a.out); err != nil {
			return err
		}
	}

	if err := a.auth.Login(ctx, email, password, remember); err != nil {
		return err
	}

	st := a.auth.Status(ctx)
	name := email
	if st.User != nil && st.User.FullName != "" {
		name = st.User.FullName
	}
	a.println("Welcome, " + name + "!")
	return nil
}

// Logout ends the session. Backend failures are not reported; the local
// session is cleared regardless.
func (a *App) Logout(ctx context.Context, _ []string) error {
	a.auth.Logout(ctx)
	return nil
}
