// Package client is the public request API of an authenticated session.
//
// Requests go through a session Transport, so callers never handle tokens:
//
//	c, err := client.New("https://api.example.com/api", sess.Transport(nil))
//	resp, err := c.Request(ctx, http.MethodGet, "/tours", client.WithQuery("page", "2"))
//	var tours []Tour
//	err = resp.JSON(&tours)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds a single request, including any refresh and resend.
const DefaultTimeout = 15 * time.Second

// maxBody caps how much of a response is read into memory.
const maxBody = 10 << 20

// ErrBodyTooLarge is returned for responses whose body exceeds 10 MiB.
var ErrBodyTooLarge = errors.New("response body too large")

// Client sends requests relative to a base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithDefaultTimeout sets the per-request timeout used when a request sets none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Client that sends requests through rt.
// A nil rt uses http.DefaultTransport.
func New(baseURL string, rt http.RoundTripper, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if rt == nil {
		rt = http.DefaultTransport
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Transport: rt,
			// Redirects are returned to the caller as is
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Request sends method to path, resolved against the base URL.
//
// A 2xx status returns a Response. Any other status returns an *APIError.
// Session failures are returned wrapped, so errors.Is matches
// session.ErrRefreshFailed and session.ErrAuthExhausted.
func (c *Client) Request(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	cfg := requestConfig{
		header:  make(http.Header),
		query:   make(url.Values),
		timeout: c.timeout,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	target := c.resolve(path, cfg.query)

	var body io.Reader
	if cfg.body != nil {
		body = bytes.NewReader(cfg.body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, vs := range cfg.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if cfg.contentType != "" {
		req.Header.Set("Content-Type", cfg.contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}

	slog.DebugContext(ctx, "sending request",
		"method", method,
		"url", redactURL(req.URL),
		"headers", redactHeaders(req.Header),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, redactURL(req.URL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(data) > maxBody {
		return nil, fmt.Errorf("%s %s: %w", method, redactURL(req.URL), ErrBodyTooLarge)
	}

	slog.DebugContext(ctx, "received response",
		"method", method,
		"url", redactURL(req.URL),
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        redactURL(req.URL),
			Body:       data,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// resolve joins path onto the base URL path and merges query into it.
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Response is a successful response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("decoding response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// APIError is returned for responses with a non-2xx status.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       []byte
}

// Error implements error.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 {
		snippet := e.Body
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		msg += ": " + strings.TrimSpace(string(snippet))
	}
	return msg
}
