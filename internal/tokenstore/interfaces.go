package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no token is stored.
var ErrNotFound = errors.New("token not found")

// TokenStore reads, writes and deletes a single token in persistent storage.
type TokenStore interface {
	// Read returns the stored token. Returns an error wrapping ErrNotFound if
	// the token is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the token to storage, replacing any previous value.
	Write(ctx context.Context, token string) error

	// Delete removes the stored token. Deleting a missing token is not an error.
	Delete(ctx context.Context) error
}
