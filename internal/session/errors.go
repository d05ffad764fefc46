package session

import (
	"errors"
	"fmt"
)

// ErrRefreshFailed is wrapped by every error that ends a session. Callers
// that only need to know "the user must log in again" check for this one.
var ErrRefreshFailed = errors.New("session refresh failed")

var (
	// ErrNoRefreshToken means a refresh was needed but no refresh token is stored.
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token", ErrRefreshFailed)

	// ErrRefreshNetwork means the refresh endpoint timed out or could not be reached.
	ErrRefreshNetwork = fmt.Errorf("%w: refresh endpoint unreachable", ErrRefreshFailed)

	// ErrRefreshRejected means the refresh endpoint answered with a non-2xx status.
	ErrRefreshRejected = fmt.Errorf("%w: refresh rejected", ErrRefreshFailed)
)

// ErrAuthExhausted is returned for a request that was still unauthorized after
// being resent once with a refreshed access token. It does not end the session.
var ErrAuthExhausted = errors.New("unauthorized after token refresh")
