package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/florianilch/sessionrelay/internal/observability/middleware"
	"github.com/florianilch/sessionrelay/internal/session"
)

// StatusPath serves the session status instead of forwarding upstream.
const StatusPath = "/_session"

// Session is the authenticated session the proxy forwards requests for.
type Session interface {
	Transport(base http.RoundTripper) *session.Transport
	Status(ctx context.Context) (session.Status, error)
	LoginRoute() string
}

// Proxy represents the authenticating reverse proxy server
type Proxy struct {
	mux     *http.ServeMux
	server  *http.Server
	addr    atomic.Pointer[string]
	session Session
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*config)

type config struct {
	baseURL   string
	transport http.RoundTripper
}

// WithBaseURL sets the upstream every request is forwarded to.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithTransport sets the transport beneath the session. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.transport = rt
	}
}

// New creates a reverse proxy that forwards every request to the upstream
// base URL with the session's bearer token attached.
func New(sess Session, opts ...Option) (*Proxy, error) {
	if sess == nil {
		return nil, fmt.Errorf("missing session")
	}

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	upstream, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host required", cfg.baseURL)
	}

	p := &Proxy{session: sess}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			// Credentials belong to the session, never to the local caller
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		// FlushInterval: -1 disables automatic periodic flushing, flushing only when the backend flushes.
		// Streaming responses (SSE) reach the client as soon as upstream sends them.
		FlushInterval: -1,
		Transport:     sess.Transport(cfg.transport),
		ErrorHandler:  p.handleUpstreamError,
	}

	logger := slog.Default()

	mux := http.NewServeMux()

	mux.Handle("GET "+StatusPath, applyMiddlewares(http.HandlerFunc(p.handleStatus),
		Recovery,
	))

	// Everything else is forwarded
	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		middleware.Logging(logger),
		Recovery,
		ReplayableBody(maxRequestBody),
	))

	p.mux = mux
	return p, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

func (p *Proxy) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := p.session.Status(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read session status", "error", err)
		writeJSONError(ctx, w, "session status unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(ctx, w, status, http.StatusOK)
}

// handleUpstreamError maps transport failures to JSON errors.
func (p *Proxy) handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	switch {
	case errors.Is(err, session.ErrRefreshFailed):
		slog.WarnContext(ctx, "session expired", "error", err)
		writeJSON(ctx, w, ErrorResponse{Error: "session expired", Login: p.session.LoginRoute()}, http.StatusUnauthorized)
	case errors.Is(err, session.ErrAuthExhausted):
		slog.WarnContext(ctx, "upstream rejected refreshed credentials", "error", err)
		writeJSONError(ctx, w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, context.Canceled):
		// Client went away, nobody is left to answer
		slog.DebugContext(ctx, "client canceled request", "error", err)
	default:
		slog.ErrorContext(ctx, "upstream request failed", "error", err)
		writeJSONError(ctx, w, "upstream unavailable", http.StatusBadGateway)
	}
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	addr := listener.Addr().String()
	p.addr.Store(&addr)

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request (DoS protection against slow clients)
		WriteTimeout: 15 * time.Minute, // Inbound: Write entire response to client (allows long streams, still bounded)
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the address the server listens on, or "" before Start.
func (p *Proxy) Addr() string {
	if addr := p.addr.Load(); addr != nil {
		return *addr
	}
	return ""
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
