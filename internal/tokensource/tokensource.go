package tokensource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single refresh exchange.
const DefaultTimeout = 15 * time.Second

var (
	// ErrRejected is returned when the refresh endpoint answers with a non-2xx
	// status or an OAuth error body.
	ErrRejected = errors.New("refresh rejected")

	// ErrUnavailable is returned when the refresh endpoint could not be reached,
	// timed out, or sent an unusable response.
	ErrUnavailable = errors.New("refresh endpoint unavailable")
)

// Token is the outcome of a successful refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	// Rotated reports whether the server issued a new refresh token.
	Rotated bool
}

// Option configures a Refresher.
type Option func(*config)

// config holds configuration for NewRefresher.
type config struct {
	baseTransport http.RoundTripper
	refreshPath   string
	timeout       time.Duration
}

// WithTransport sets a custom base transport for refresh requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.baseTransport = transport
	}
}

// WithRefreshPath overrides DefaultRefreshPath.
func WithRefreshPath(path string) Option {
	return func(c *config) {
		c.refreshPath = path
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// Refresher performs refresh exchanges against a single endpoint.
// It keeps no token state and is safe for concurrent use.
type Refresher struct {
	oauth2Config *oauth2.Config
	httpClient   *http.Client
}

// NewRefresher creates a Refresher for the refresh endpoint under baseURL.
func NewRefresher(baseURL string, opts ...Option) (*Refresher, error) {
	cfg := &config{
		baseTransport: http.DefaultTransport,
		refreshPath:   DefaultRefreshPath,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	endpoint, err := refreshEndpoint(baseURL, cfg.refreshPath)
	if err != nil {
		return nil, err
	}

	return &Refresher{
		oauth2Config: &oauth2.Config{Endpoint: endpoint},
		// The client timeout bounds the exchange even when the caller's context has no deadline
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: &jsonRefreshTransport{base: cfg.baseTransport},
		},
	}, nil
}

// Endpoint returns the absolute refresh URL.
func (r *Refresher) Endpoint() string {
	return r.oauth2Config.Endpoint.TokenURL
}

// Refresh exchanges refreshToken for a new access token. Errors wrap either
// ErrRejected or ErrUnavailable.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, fmt.Errorf("%w: empty refresh token", ErrRejected)
	}

	// oauth2 picks up the HTTP client from the context (oauth2.HTTPClient key)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	// A token without an access token is never valid, so Token() always refreshes
	tok, err := r.oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return Token{}, fmt.Errorf("%w: status %d: %w", ErrRejected, status, err)
		}
		return Token{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// oauth2 carries the previous refresh token forward when the response omits one
	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Rotated:      tok.RefreshToken != refreshToken,
	}, nil
}

// jsonRefreshTransport converts oauth2's form-encoded refresh grant into the
// JSON body the refresh endpoint expects.
// The oauth2 package guarantees this transport only receives token endpoint requests.
type jsonRefreshTransport struct {
	base http.RoundTripper
}

// Compile-time check that jsonRefreshTransport implements http.RoundTripper.
var _ http.RoundTripper = (*jsonRefreshTransport)(nil)

// RoundTrip rewrites the grant body and forwards the request.
func (t *jsonRefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// We consume the body entirely and hand a new one to the cloned request
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	// grant_type and client_id are oauth2 bookkeeping the endpoint doesn't accept
	jsonBody, err := json.Marshal(map[string]string{
		"refresh_token": formData.Get("refresh_token"),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")
	newReq.Header.Set("Accept", "application/json")

	return t.base.RoundTrip(newReq)
}
