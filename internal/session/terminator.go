package session

import (
	"context"
	"fmt"
	"log/slog"
)

// SessionExpiredHandler is notified when the session cannot be recovered.
// loginRoute is where the host application should send the user to
// authenticate again; cause is the refresh failure that ended the session.
type SessionExpiredHandler interface {
	SessionExpired(ctx context.Context, loginRoute string, cause error)
}

// SessionExpiredFunc adapts a function to SessionExpiredHandler.
type SessionExpiredFunc func(ctx context.Context, loginRoute string, cause error)

// SessionExpired calls f.
func (f SessionExpiredFunc) SessionExpired(ctx context.Context, loginRoute string, cause error) {
	f(ctx, loginRoute, cause)
}

// Terminator notifies the host application that the session has ended.
//
// The Coordinator calls Terminate once per failed refresh, however many
// callers were waiting on it. Every failed refresh notifies again, including
// one that uses a refresh token another process stored after an earlier failure.
type Terminator struct {
	handler    SessionExpiredHandler
	loginRoute string
}

// NewTerminator creates a Terminator. A nil handler only logs.
func NewTerminator(handler SessionExpiredHandler, loginRoute string) *Terminator {
	return &Terminator{
		handler:    handler,
		loginRoute: loginRoute,
	}
}

// LoginRoute returns the configured login route.
func (t *Terminator) LoginRoute() string {
	return t.loginRoute
}

// Terminate logs the session end and notifies the handler.
// Reports whether a handler was invoked, even one that panicked.
func (t *Terminator) Terminate(ctx context.Context, cause error) (fired bool) {
	slog.WarnContext(ctx, "session expired", "login_route", t.loginRoute, "error", cause)

	if t.handler == nil {
		return false
	}

	// A misbehaving host callback must not take down the refresh goroutine
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "session expired handler panicked", "panic", fmt.Sprint(r))
		}
	}()
	fired = true
	t.handler.SessionExpired(ctx, t.loginRoute, cause)
	return fired
}
