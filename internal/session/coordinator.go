package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/florianilch/sessionrelay/internal/tokensource"
)

// DefaultRefreshTimeout bounds a single refresh, matching the default request timeout.
const DefaultRefreshTimeout = 15 * time.Second

// State is the refresh state of a Coordinator.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Refresher exchanges a refresh token for new tokens.
// *tokensource.Refresher is the production implementation.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (tokensource.Token, error)
}

// outcome is what every waiter of one refresh receives.
type outcome struct {
	access string
	err    error
}

// Coordinator serializes refreshes into a single in-flight operation.
//
// The first Acquire on an idle Coordinator starts a refresh; every Acquire
// while it runs joins the waiter queue instead of starting another one. When
// the refresh settles, all waiters receive the same outcome, the queue is
// emptied and the state returns to idle.
type Coordinator struct {
	credentials *Credentials
	refresher   Refresher
	terminator  *Terminator
	timeout     time.Duration

	mu      sync.Mutex // guards state and waiters
	state   State
	waiters []chan outcome
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator(credentials *Credentials, refresher Refresher, terminator *Terminator, timeout time.Duration) (*Coordinator, error) {
	if credentials == nil {
		return nil, fmt.Errorf("missing credentials")
	}
	if refresher == nil {
		return nil, fmt.Errorf("missing refresher")
	}
	if terminator == nil {
		return nil, fmt.Errorf("missing terminator")
	}
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}

	return &Coordinator{
		credentials: credentials,
		refresher:   refresher,
		terminator:  terminator,
		timeout:     timeout,
	}, nil
}

// State returns the current refresh state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Acquire returns a fresh access token, starting a refresh or joining the one
// in flight. Errors wrap ErrRefreshFailed, except ctx.Err() when ctx ends
// before the refresh settles.
//
// Cancelling ctx only withdraws this caller. The refresh itself is not tied
// to any caller's context and still settles for the remaining waiters.
func (c *Coordinator) Acquire(ctx context.Context) (string, error) {
	ch := make(chan outcome, 1)

	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	if c.state == StateIdle {
		c.state = StateRefreshing
		go c.refresh(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	select {
	case out := <-ch:
		return out.access, out.err
	case <-ctx.Done():
		c.mu.Lock()
		c.waiters = slices.DeleteFunc(c.waiters, func(w chan outcome) bool { return w == ch })
		c.mu.Unlock()
		return "", ctx.Err()
	}
}

// refresh performs the single in-flight refresh and fans out its outcome.
func (c *Coordinator) refresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	slog.DebugContext(ctx, "refreshing access token")
	access, err := c.exchange(refreshCtx)

	if err == nil {
		c.mu.Lock()
		c.settle(outcome{access: access})
		c.state = StateIdle
		c.mu.Unlock()

		slog.InfoContext(ctx, "access token refreshed")
		return
	}

	slog.ErrorContext(ctx, "access token refresh failed", "error", err)

	// refreshCtx may already be past its deadline
	clearCtx, cancelClear := context.WithTimeout(ctx, c.timeout)
	defer cancelClear()
	if clearErr := c.credentials.Clear(clearCtx); clearErr != nil {
		slog.ErrorContext(ctx, "failed to clear credentials", "error", clearErr)
	}

	c.mu.Lock()
	c.settle(outcome{err: err})
	c.mu.Unlock()

	// Still refreshing: anyone arriving now joins this failure instead of
	// starting a refresh that would notify a second time for the same event
	c.terminator.Terminate(ctx, err)

	c.mu.Lock()
	c.settle(outcome{err: err})
	c.state = StateIdle
	c.mu.Unlock()
}

// settle delivers out to every queued waiter and empties the queue.
// Must be called with c.mu held.
func (c *Coordinator) settle(out outcome) {
	for _, w := range c.waiters {
		w <- out
	}
	c.waiters = nil
}

// exchange reads the refresh token, calls the refresh endpoint and stores the result.
func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	refreshToken, err := c.credentials.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	tok, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, tokensource.ErrRejected) {
			return "", fmt.Errorf("%w: %w", ErrRefreshRejected, err)
		}
		return "", fmt.Errorf("%w: %w", ErrRefreshNetwork, err)
	}

	// Non-rotating endpoints keep the stored refresh token as is
	rotated := ""
	if tok.Rotated {
		rotated = tok.RefreshToken
	}
	if err := c.credentials.Set(ctx, tok.AccessToken, rotated); err != nil {
		// The access token is valid, but the next refresh after a restart will fail
		slog.ErrorContext(ctx, "failed to persist refresh token", "error", err)
	}

	return tok.AccessToken, nil
}
