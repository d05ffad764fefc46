// Package session attaches bearer credentials to outbound requests and
// recovers from credential expiry.
//
// A Session owns three cooperating parts:
//   - Credentials: the access token (process memory) and the refresh token
//     (durable tokenstore.TokenStore)
//   - Coordinator: single-flight refresh. However many goroutines call
//     Acquire while a refresh is in flight, exactly one refresh request is
//     sent and every caller observes its outcome.
//   - Terminator: notifies the host application once when the session cannot
//     be recovered and the user has to log in again.
//
// Transport ties them together as an http.RoundTripper:
//
//	s, err := session.New(session.Config{
//		Store:      store,
//		Refresher:  refresher,
//		LoginRoute: "/login",
//		OnExpired:  session.SessionExpiredFunc(redirectToLogin),
//	})
//	client := &http.Client{Transport: s.Transport(nil)}
//
// Before each request the transport attaches "Authorization: Bearer <access>".
// With no access token but a stored refresh token it refreshes first. A 401
// response triggers one refresh-and-resend; a second 401 for the same request
// fails with ErrAuthExhausted.
package session
