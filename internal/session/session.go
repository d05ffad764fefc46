package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/florianilch/sessionrelay/internal/tokenstore"
)

// Config describes how to build a Session.
type Config struct {
	// Store persists the refresh token.
	Store tokenstore.TokenStore
	// Refresher calls the refresh endpoint.
	Refresher Refresher
	// OnExpired is notified when the session ends. Optional.
	OnExpired SessionExpiredHandler
	// LoginRoute is passed to OnExpired.
	LoginRoute string
	// RefreshTimeout bounds a single refresh. Defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration
}

// Session is one authenticated client session.
type Session struct {
	credentials *Credentials
	coordinator *Coordinator
	terminator  *Terminator
}

// Status is a point-in-time view of a Session.
type Status struct {
	State      State `json:"state"`
	HasAccess  bool  `json:"has_access_token"`
	HasRefresh bool  `json:"has_refresh_token"`
}

// New creates a Session. No I/O is performed.
func New(cfg Config) (*Session, error) {
	credentials, err := NewCredentials(cfg.Store)
	if err != nil {
		return nil, err
	}

	terminator := NewTerminator(cfg.OnExpired, cfg.LoginRoute)

	coordinator, err := NewCoordinator(credentials, cfg.Refresher, terminator, cfg.RefreshTimeout)
	if err != nil {
		return nil, err
	}

	return &Session{
		credentials: credentials,
		coordinator: coordinator,
		terminator:  terminator,
	}, nil
}

// Transport returns an http.RoundTripper that authenticates requests sent
// through base. A nil base uses http.DefaultTransport.
func (s *Session) Transport(base http.RoundTripper) *Transport {
	return &Transport{
		Base:        base,
		credentials: s.credentials,
		coordinator: s.coordinator,
	}
}

// Login stores freshly issued tokens. An empty refresh token keeps the stored one.
func (s *Session) Login(ctx context.Context, access, refresh string) error {
	if access == "" && refresh == "" {
		return fmt.Errorf("login requires an access or refresh token")
	}
	return s.credentials.Set(ctx, access, refresh)
}

// Logout clears both tokens without notifying the session expired handler.
func (s *Session) Logout(ctx context.Context) error {
	return s.credentials.Clear(ctx)
}

// Acquire forces a refresh, or joins the one in flight.
func (s *Session) Acquire(ctx context.Context) (string, error) {
	return s.coordinator.Acquire(ctx)
}

// AccessToken returns the current access token, or "".
func (s *Session) AccessToken() string {
	return s.credentials.Access()
}

// LoginRoute returns where the user is sent to log in again.
func (s *Session) LoginRoute() string {
	return s.terminator.LoginRoute()
}

// Status reports the refresh state and which tokens are present.
func (s *Session) Status(ctx context.Context) (Status, error) {
	refresh, err := s.credentials.Refresh(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		State:      s.coordinator.State(),
		HasAccess:  s.credentials.Access() != "",
		HasRefresh: refresh != "",
	}, nil
}
