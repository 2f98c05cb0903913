package authclient

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// TokenStore is the persistence boundary for credential material and the
// cached user record. Implementations are purely passive key/value holders:
// no validation, no network access, safe to call before any other I/O.
// All session and client mutations go through this interface so a single
// choke point governs consistency.
type TokenStore interface {
	Save(ctx context.Context, pair TokenPair) error
	Load(ctx context.Context) (*TokenPair, error)
	Clear(ctx context.Context) error

	SaveUser(ctx context.Context, user *User) error
	LoadUser(ctx context.Context) (*User, error)
	ClearUser(ctx context.Context) error
}

// Redirector performs a hard navigation outside the reactive tree. It is the
// last-resort fallback when a session expires in a code path that has no
// access to the in-app SessionExpired signal (a wasm frontend hooks the
// browser location, a TUI swaps screens, tests record the path).
type Redirector interface {
	Redirect(path string)
}

// NoopRedirector satisfies Redirector without side effects.
type NoopRedirector struct{}

func (NoopRedirector) Redirect(string) {}

// DefaultLogger returns the stdout logger used when no Logger is provided.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHCLIENT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
