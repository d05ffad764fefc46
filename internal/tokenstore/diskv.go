package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/peterbourgon/diskv/v3"
)

// DiskvStore keeps the token as a single key in a diskv directory.
type DiskvStore struct {
	dv  *diskv.Diskv
	key string
}

// Compile-time check to ensure DiskvStore implements TokenStore
var _ TokenStore = (*DiskvStore)(nil)

// NewDiskvStore creates a DiskvStore rooted at dir, storing the token under key.
func NewDiskvStore(dir, key string) (*DiskvStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	// Flat transform: every key is a file directly under the base dir
	flatTransform := func(string) []string { return []string{} }

	dv := diskv.New(diskv.Options{
		BasePath:     dir,
		TempDir:      dir + ".tmp",
		Transform:    flatTransform,
		CacheSizeMax: 0, // other processes (login, logout) write the same key
		PathPerm:     0700,
		FilePerm:     0600,
	})

	return &DiskvStore{dv: dv, key: key}, nil
}

// Read returns the token stored under the configured key.
func (d *DiskvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !d.dv.Has(d.key) {
		return "", fmt.Errorf("%w: diskv key %s", ErrNotFound, d.key)
	}

	b, err := d.dv.Read(d.key)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: diskv key %s", ErrNotFound, d.key)
	}
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("%w: empty diskv key %s", ErrNotFound, d.key)
	}
	return token, nil
}

// Write stores the token under the configured key.
func (d *DiskvStore) Write(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return d.dv.WriteString(d.key, token)
}

// Delete erases the configured key.
func (d *DiskvStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := d.dv.Erase(d.key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
