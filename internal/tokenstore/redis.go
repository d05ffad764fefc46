package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token under a single Redis key. Several relay
// instances pointed at the same key share one session.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// Compile-time check to ensure RedisStore implements TokenStore
var _ TokenStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore using an existing client.
func NewRedisStore(client redis.UniversalClient, key string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	return &RedisStore{client: client, key: key}, nil
}

// Read returns the token stored under the configured key.
func (r *RedisStore) Read(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: redis key %s", ErrNotFound, r.key)
	}
	if err != nil {
		return "", fmt.Errorf("reading redis key %s: %w", r.key, err)
	}

	if token == "" {
		return "", fmt.Errorf("%w: empty redis key %s", ErrNotFound, r.key)
	}
	return token, nil
}

// Write stores the token without expiry. Refresh token lifetime is enforced
// by the issuing server, not by the store.
func (r *RedisStore) Write(ctx context.Context, token string) error {
	if err := r.client.Set(ctx, r.key, token, 0).Err(); err != nil {
		return fmt.Errorf("writing redis key %s: %w", r.key, err)
	}
	return nil
}

// Delete removes the configured key.
func (r *RedisStore) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("deleting redis key %s: %w", r.key, err)
	}
	return nil
}
