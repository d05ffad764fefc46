// Package tokensource exchanges a refresh token for a new access token.
//
// The refresh endpoint speaks a trimmed-down refresh grant: it expects a
// JSON body carrying only the refresh token and answers with an access token
// and, optionally, a rotated refresh token:
//
//	POST {base_url}/auth/refresh
//	{"refresh_token": "..."}
//
//	200 OK
//	{"access_token": "...", "refresh_token": "..."}
//
// golang.org/x/oauth2 drives the exchange; a custom transport rewrites its
// form-encoded grant into that JSON body.
//
// # Usage
//
//	r, err := tokensource.NewRefresher("https://api.example.com")
//	tok, err := r.Refresh(ctx, refreshToken)
//
// # Custom Base Transport
//
// Configure a custom base transport for refresh requests (e.g., for proxies or tests):
//
//	r, err := tokensource.NewRefresher(
//		baseURL,
//		tokensource.WithTransport(customTransport),
//		tokensource.WithTimeout(5*time.Second),
//	)
package tokensource
