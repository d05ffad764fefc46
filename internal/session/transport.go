package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// retriedKey marks a request context as already resent once after a 401.
type retriedKey struct{}

// withRetried returns ctx marked as carrying a resent request.
func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// isRetried reports whether ctx carries a resent request.
func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

// Transport is an http.RoundTripper that authenticates requests with the
// session's bearer token and refreshes it on demand.
type Transport struct {
	// Base sends the requests. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	credentials *Credentials
	coordinator *Coordinator
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip attaches the access token, sends the request and, on a 401,
// refreshes and resends it once.
//
// Refresh failures are returned as errors wrapping ErrRefreshFailed, and a
// second 401 as an error wrapping ErrAuthExhausted. Every other response,
// including non-401 error statuses, is returned unchanged.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	access, refreshErr, err := t.authenticate(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	resp, err := t.base().RoundTrip(withBearer(ctx, req, access))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	return t.retry(req, resp, access, refreshErr)
}

// authenticate returns the access token to send, refreshing first when only a
// refresh token is available. A failed pre-send refresh yields "" and the
// refresh error, so the request goes out unauthenticated and the 401 path
// decides its fate. err is only set when ctx ended.
func (t *Transport) authenticate(ctx context.Context) (access string, refreshErr, err error) {
	if access := t.credentials.Access(); access != "" {
		return access, nil, nil
	}

	refreshToken, err := t.credentials.Refresh(ctx)
	if err != nil {
		slog.DebugContext(ctx, "sending unauthenticated request", "error", err)
		return "", nil, nil
	}
	if refreshToken == "" {
		return "", nil, nil
	}

	access, refreshErr = t.coordinator.Acquire(ctx)
	if refreshErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, ctxErr
		}
		slog.DebugContext(ctx, "pre-send refresh failed, sending unauthenticated request", "error", refreshErr)
		return "", refreshErr, nil
	}
	return access, nil, nil
}

// retry handles a 401 response to req, which was sent with access.
// refreshErr is the failure of a refresh attempted before sending, if any.
func (t *Transport) retry(req *http.Request, resp *http.Response, access string, refreshErr error) (*http.Response, error) {
	ctx := req.Context()

	if isRetried(ctx) {
		drainAndClose(resp)
		return nil, fmt.Errorf("%w: %s %s", ErrAuthExhausted, req.Method, redactedURL(req))
	}

	// Bodies that cannot be rewound cannot be resent
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		slog.DebugContext(ctx, "request body not replayable, returning 401 as is")
		return resp, nil
	}
	drainAndClose(resp)

	// Another request may have refreshed since this one was sent
	fresh := t.credentials.Access()
	if fresh == "" || fresh == access {
		if refreshErr != nil && !t.hasRefreshToken(ctx) {
			// The failed refresh already ended the session and notified the
			// host; another flight would only report the same expiry again
			return nil, refreshErr
		}

		var err error
		fresh, err = t.coordinator.Acquire(ctx)
		if err != nil {
			return nil, err
		}
	}

	retryCtx := withRetried(ctx)
	retryReq := withBearer(retryCtx, req, fresh)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		retryReq.Body = body
	}

	resp, err := t.base().RoundTrip(retryReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)
		return nil, fmt.Errorf("%w: %s %s", ErrAuthExhausted, req.Method, redactedURL(req))
	}
	return resp, nil
}

// hasRefreshToken reports whether a refresh token is stored, for instance by
// a login after the last failed refresh.
func (t *Transport) hasRefreshToken(ctx context.Context) bool {
	refreshToken, err := t.credentials.Refresh(ctx)
	return err == nil && refreshToken != ""
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// withBearer clones req onto ctx with the Authorization header set to access,
// or removed when access is empty. RoundTrippers must not modify the caller's request.
func withBearer(ctx context.Context, req *http.Request, access string) *http.Request {
	out := req.Clone(ctx)
	if access == "" {
		out.Header.Del("Authorization")
	} else {
		out.Header.Set("Authorization", "Bearer "+access)
	}
	return out
}

// drainAndClose discards the rest of the body so the connection can be reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}

// closeBody closes the request body on paths that never hand it to Base,
// as the RoundTripper contract requires.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// redactedURL returns the request URL without query or credentials.
func redactedURL(req *http.Request) string {
	u := *req.URL
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
