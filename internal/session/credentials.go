package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/florianilch/sessionrelay/internal/tokenstore"
)

// Credentials holds the access token in memory and the refresh token in a
// durable store. The access token is never persisted.
//
// Reads are safe from any goroutine. Writes happen from the Coordinator's
// refresh, from Login and from Logout.
type Credentials struct {
	store tokenstore.TokenStore

	mu     sync.RWMutex
	access string
}

// NewCredentials creates Credentials backed by store. No I/O is performed.
func NewCredentials(store tokenstore.TokenStore) (*Credentials, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}
	return &Credentials{store: store}, nil
}

// Access returns the current access token, or "" if there is none.
func (c *Credentials) Access() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access
}

// Refresh reads the refresh token from durable storage. A missing token is
// reported as "" with a nil error.
func (c *Credentials) Refresh(ctx context.Context) (string, error) {
	token, err := c.store.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading refresh token: %w", err)
	}
	return token, nil
}

// Set replaces the access token unconditionally and, if refresh is non-empty,
// the stored refresh token. The access token is replaced even when persisting
// the refresh token fails.
func (c *Credentials) Set(ctx context.Context, access, refresh string) error {
	c.mu.Lock()
	c.access = access
	c.mu.Unlock()

	if refresh == "" {
		return nil
	}
	if err := c.store.Write(ctx, refresh); err != nil {
		return fmt.Errorf("writing refresh token: %w", err)
	}
	return nil
}

// Clear removes both tokens. The access token is dropped even when deleting
// the durable refresh token fails.
func (c *Credentials) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.access = ""
	c.mu.Unlock()

	if err := c.store.Delete(ctx); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}
