package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/geopresence/internal/client/client"
	"github.com/dmitrijs2005/geopresence/internal/client/services"
	"github.com/dmitrijs2005/geopresence/internal/client/session"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn(ctx context.Context) bool
	touch()
	Register(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	Extend(ctx context.Context, args []string) error
	Profile(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Expiry(ctx context.Context, args []string) error
	Attendance(ctx context.Context, args []string) error
}

// runREPL reads commands line by line from in and dispatches them to a.
// Every non-empty line is reported as activity before dispatch. The loop
// exits on end of input or when the user types "exit" or "quit".
//
//	Not logged in:
//	  - help              show available commands
//	  - register          create an account
//	  - login [-r]        authenticate, -r keeps the session on this device
//	  - status            show the session state
//	  - exit | quit       leave the program
//
//	Logged in:
//	  - help              show available commands
//	  - extend            refresh the access token now
//	  - profile           show the signed-in user
//	  - status            show the session state
//	  - expiry            re-read the expiry from the server
//	  - attendance | ls   list attendance records
//	  - logout            end the session
//	  - exit | quit       leave the program
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, promptFn func() string, in *bufio.Reader, out io.Writer) {
	for {
		fmt.Fprint(out, promptFn())
		line, err := readLine(in)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		a.touch()

		cmd, args := parts[0], parts[1:]
		var cmdErr error

		switch cmd {
		case "help":
			if a.isLoggedIn(ctx) {
				fmt.Fprintln(out, "Available commands: extend, profile, status, expiry, attendance (ls), logout, exit")
			} else {
				fmt.Fprintln(out, "Available commands: register, login [-r], status, exit")
			}
		case "register":
			cmdErr = a.Register(ctx, args)
		case "login":
			cmdErr = a.Login(ctx, args)
		case "logout":
			cmdErr = a.Logout(ctx, args)
		case "extend":
			cmdErr = a.Extend(ctx, args)
		case "profile":
			cmdErr = a.Profile(ctx, args)
		case "status":
			cmdErr = a.Status(ctx, args)
		case "expiry":
			cmdErr = a.Expiry(ctx, args)
		case "attendance", "ls":
			cmdErr = a.Attendance(ctx, args)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(out, "Error:", describe(cmdErr))
		}
	}
}

// describe turns an error into a message for the user.
func describe(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, session.ErrSessionExpired):
		return "your session has expired, please log in again"
	case errors.Is(err, session.ErrNotAuthenticated):
		return "not logged in"
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable, try again later"
	case errors.As(err, &apiErr):
		return client.Message(err)
	default:
		return err.Error()
	}
}
