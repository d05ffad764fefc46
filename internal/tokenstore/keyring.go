package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps the refresh token in the OS credential store
// (macOS Keychain, Windows Credential Manager, Linux Secret Service).
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the entry service/user.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}
	return &KeyringStore{service: service, user: user}, nil
}

// Read returns the refresh token, or ErrNotFound when the entry is absent or empty.
func (k *KeyringStore) Read(ctx context.Context) (string, error) {
	token, err := callKeyring(ctx, func() (string, error) {
		return keyring.Get(k.service, k.user)
	})
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("%w: keyring entry %s/%s", ErrNotFound, k.service, k.user)
	case err != nil:
		return "", fmt.Errorf("reading keyring entry %s/%s: %w", k.service, k.user, err)
	case token == "":
		return "", fmt.Errorf("%w: empty keyring entry %s/%s", ErrNotFound, k.service, k.user)
	}
	return token, nil
}

// Write replaces the keyring entry.
func (k *KeyringStore) Write(ctx context.Context, token string) error {
	_, err := callKeyring(ctx, func() (string, error) {
		return "", keyring.Set(k.service, k.user, token)
	})
	if err != nil {
		return fmt.Errorf("writing keyring entry %s/%s: %w", k.service, k.user, err)
	}
	return nil
}

// Delete removes the keyring entry. A missing entry is not an error.
func (k *KeyringStore) Delete(ctx context.Context) error {
	_, err := callKeyring(ctx, func() (string, error) {
		return "", keyring.Delete(k.service, k.user)
	})
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring entry %s/%s: %w", k.service, k.user, err)
	}
	return nil
}

// callKeyring runs fn, returning early when ctx ends. Secret Service calls
// can block on an unlock prompt, and go-keyring takes no context.
func callKeyring(ctx context.Context, fn func() (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		value string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn()
		done <- result{value, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
