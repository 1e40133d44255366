// Package cli provides the interactive geopresence command-line client.
//
// It runs a REPL over the session manager: register, login (with an
// optional "remember me"), logout, extend, profile, status, expiry and
// attendance. Every entered line counts as user activity for the idle
// monitor. Session events (expiry warning, extension, idle warning,
// logout) are printed as they arrive, and while the session is in its
// warning window a countdown is printed periodically.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits
// or the input ends.
package cli
