package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/florianilch/sessionrelay/internal/tokensource"
	"github.com/florianilch/sessionrelay/internal/tokenstore"
)

// fakeRefresher counts calls and optionally blocks until released.
type fakeRefresher struct {
	calls atomic.Int32

	mu    sync.Mutex
	gate  chan struct{}
	token tokensource.Token
	err   error
	seen  []string
}

func newFakeRefresher(token tokensource.Token, err error) *fakeRefresher {
	return &fakeRefresher{token: token, err: err}
}

// hold makes subsequent Refresh calls block until the returned func is called.
func (f *fakeRefresher) hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (tokensource.Token, error) {
	f.calls.Add(1)

	f.mu.Lock()
	gate := f.gate
	f.seen = append(f.seen, refreshToken)
	token, err := f.token, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return tokensource.Token{}, errors.Join(tokensource.ErrUnavailable, ctx.Err())
		}
	}
	return token, err
}

// expiredRecorder counts session expired notifications.
type expiredRecorder struct {
	calls  atomic.Int32
	mu     sync.Mutex
	routes []string
	causes []error
	block  chan struct{}
}

func (e *expiredRecorder) SessionExpired(_ context.Context, loginRoute string, cause error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.routes = append(e.routes, loginRoute)
	e.causes = append(e.causes, cause)
	block := e.block
	e.mu.Unlock()
	if block != nil {
		<-block
	}
}

// newTestSession builds a Session over an in-memory store seeded with refresh.
func newTestSession(t *testing.T, refresher Refresher, refresh string) (*Session, *tokenstore.MemoryStore, *expiredRecorder) {
	t.Helper()

	store := tokenstore.NewMemoryStore(refresh)
	expired := &expiredRecorder{}
	s, err := New(Config{
		Store:          store,
		Refresher:      refresher,
		OnExpired:      expired,
		LoginRoute:     "/login",
		RefreshTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return s, store, expired
}

// waitForWaiters blocks until n callers are parked in c's queue.
func waitForWaiters(t *testing.T, c *Coordinator, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.waiters) == n
	}, 5*time.Second, time.Millisecond, "expected %d waiters", n)
}

func newTestStore(refresh string) *tokenstore.MemoryStore {
	return tokenstore.NewMemoryStore(refresh)
}

// readOnlyStore serves a fixed token and rejects writes.
type readOnlyStore struct{ token string }

func (r *readOnlyStore) Read(context.Context) (string, error) { return r.token, nil }
func (r *readOnlyStore) Write(context.Context, string) error  { return errors.New("read-only") }
func (r *readOnlyStore) Delete(context.Context) error         { return errors.New("read-only") }

// waitIdle blocks until c has fully settled its last refresh, including
// notifying the session expired handler.
func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == StateIdle }, 5*time.Second, time.Millisecond)
}
