package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/sessionrelay/internal/client"
	"github.com/florianilch/sessionrelay/internal/proxy"
	"github.com/florianilch/sessionrelay/internal/session"
	"github.com/florianilch/sessionrelay/internal/tokensource"
	"github.com/florianilch/sessionrelay/internal/tokenstore"
)

// App orchestrates the session, the proxy server and related services.
type App struct {
	cfg     *Config
	session *session.Session
	proxy   *proxy.Proxy
	client  *client.Client

	// closers release resources held by the token store
	closers []func() error
}

// New creates a new App instance. No I/O is performed.
func New(cfg *Config) (*App, error) {
	return newApp(cfg, http.DefaultTransport)
}

// newApp builds the App with transport beneath every outbound request.
func newApp(cfg *Config, transport http.RoundTripper) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, closers, err := newTokenStore(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	a := &App{cfg: cfg, closers: closers}

	refresher, err := tokensource.NewRefresher(cfg.Upstream.BaseURL,
		tokensource.WithRefreshPath(cfg.Auth.RefreshPath),
		tokensource.WithTimeout(cfg.Auth.RefreshTimeout),
		tokensource.WithTransport(transport),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create refresher: %w", err)
	}

	a.session, err = session.New(session.Config{
		Store:          store,
		Refresher:      refresher,
		OnExpired:      session.SessionExpiredFunc(logSessionExpired),
		LoginRoute:     cfg.Auth.LoginRoute,
		RefreshTimeout: cfg.Auth.RefreshTimeout,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	a.proxy, err = proxy.New(a.session,
		proxy.WithBaseURL(cfg.Upstream.BaseURL),
		proxy.WithTransport(transport),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	a.client, err = client.New(cfg.Upstream.BaseURL, a.session.Transport(transport),
		client.WithDefaultTimeout(cfg.Client.Timeout),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return a, nil
}

// Session returns the authenticated session.
func (a *App) Session() *session.Session {
	return a.session
}

// Client returns the client for requests on behalf of the session.
func (a *App) Client() *client.Client {
	return a.client
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	shutdownFuncs := []func(context.Context) error{
		func(context.Context) error { return a.Close() },
	}

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "address", address, "upstream", a.cfg.Upstream.BaseURL)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", a.proxy.Addr())

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// Close releases resources held by the token store. Safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newTokenStore creates the durable refresh token store from configuration,
// plus funcs releasing what it holds open.
func newTokenStore(cfg AuthConfig) (tokenstore.TokenStore, []func() error, error) {
	switch cfg.Storage {
	case TokenStorageTypeFile:
		store, err := tokenstore.NewFileStore(cfg.File)
		return store, nil, err
	case TokenStorageTypeKeyring:
		store, err := tokenstore.NewKeyringStore(keyringService, cfg.KeyringUser)
		return store, nil, err
	case TokenStorageTypeDiskv:
		store, err := tokenstore.NewDiskvStore(cfg.DiskvDir, cfg.Key)
		return store, nil, err
	case TokenStorageTypeRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store, err := tokenstore.NewRedisStore(rdb, cfg.Key)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return store, []func() error{rdb.Close}, nil
	case TokenStorageTypeMemory:
		return tokenstore.NewMemoryStore(""), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage)
	}
}

// logSessionExpired tells the operator to log in again.
func logSessionExpired(ctx context.Context, loginRoute string, cause error) {
	slog.WarnContext(ctx, "session expired, log in again", "login_route", loginRoute, "cause", cause)
}
