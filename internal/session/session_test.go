package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/sessionrelay/internal/tokensource"
)

func TestSessionLoginAndStatus(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestSession(t, newFakeRefresher(tokensource.Token{}, nil), "")

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{State: StateIdle}, st)

	require.NoError(t, s.Login(ctx, "A1", "R1"))
	assert.Equal(t, "A1", s.AccessToken())

	stored, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R1", stored)

	st, err = s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{State: StateIdle, HasAccess: true, HasRefresh: true}, st)
}

func TestSessionLoginRequiresToken(t *testing.T) {
	s, _, _ := newTestSession(t, newFakeRefresher(tokensource.Token{}, nil), "")
	assert.Error(t, s.Login(context.Background(), "", ""))
}

func TestSessionLoginKeepsStoredRefreshToken(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestSession(t, newFakeRefresher(tokensource.Token{}, nil), "R1")

	require.NoError(t, s.Login(ctx, "A1", ""))

	stored, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R1", stored)
}

func TestSessionLogoutDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	s, _, expired := newTestSession(t, newFakeRefresher(tokensource.Token{}, nil), "R1")
	require.NoError(t, s.Login(ctx, "A1", ""))

	require.NoError(t, s.Logout(ctx))

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.HasAccess)
	assert.False(t, st.HasRefresh)
	assert.Zero(t, expired.calls.Load())
}

func TestSessionExpiresAgainAfterLogin(t *testing.T) {
	ctx := context.Background()
	refresher := newFakeRefresher(tokensource.Token{}, tokensource.ErrRejected)
	s, _, expired := newTestSession(t, refresher, "R1")

	_, err := s.Acquire(ctx)
	require.ErrorIs(t, err, ErrRefreshRejected)
	waitIdle(t, s.coordinator)
	assert.EqualValues(t, 1, expired.calls.Load())

	require.NoError(t, s.Login(ctx, "", "R2"))
	_, err = s.Acquire(ctx)
	require.ErrorIs(t, err, ErrRefreshRejected)
	waitIdle(t, s.coordinator)
	assert.EqualValues(t, 2, expired.calls.Load())
	assert.Equal(t, []string{"/login", "/login"}, expired.routes)
}

func TestSessionStatusJSON(t *testing.T) {
	b, err := json.Marshal(Status{State: StateRefreshing, HasRefresh: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"refreshing","has_access_token":false,"has_refresh_token":true}`, string(b))
}

func TestNewSessionValidation(t *testing.T) {
	_, err := New(Config{Refresher: newFakeRefresher(tokensource.Token{}, nil)})
	assert.Error(t, err)

	_, err = New(Config{Store: newTestStore("")})
	assert.Error(t, err)
}

func TestSessionLoginRoute(t *testing.T) {
	s, _, _ := newTestSession(t, newFakeRefresher(tokensource.Token{}, nil), "")
	assert.Equal(t, "/login", s.LoginRoute())
}
