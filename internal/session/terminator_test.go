package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminatorFiresOnEveryCall(t *testing.T) {
	expired := &expiredRecorder{}
	term := NewTerminator(expired, "/admin/login")
	cause := errors.New("rejected")

	assert.True(t, term.Terminate(context.Background(), cause))
	assert.True(t, term.Terminate(context.Background(), ErrNoRefreshToken))
	assert.EqualValues(t, 2, expired.calls.Load())
	assert.Equal(t, []string{"/admin/login", "/admin/login"}, expired.routes)
	assert.Equal(t, []error{cause, ErrNoRefreshToken}, expired.causes)
}

func TestTerminatorRecoversHandlerPanic(t *testing.T) {
	term := NewTerminator(SessionExpiredFunc(func(context.Context, string, error) {
		panic("navigation failed")
	}), "/login")

	assert.NotPanics(t, func() {
		assert.True(t, term.Terminate(context.Background(), ErrRefreshRejected), "a panicking handler was still invoked")
	})
}

func TestTerminatorWithoutHandler(t *testing.T) {
	term := NewTerminator(nil, "/login")
	assert.False(t, term.Terminate(context.Background(), ErrNoRefreshToken))
	assert.Equal(t, "/login", term.LoginRoute())
}
