// Package redis implements cache.Backend on Redis for shared-device deployments.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/cache"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

const defaultPrefix = "cartsync:"

// Backend stores cache values as Redis strings under a key prefix.
type Backend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	quota  int
}

// NewBackend creates a Redis backend. A zero ttl keeps values until deleted.
func NewBackend(client *redis.Client, prefix string, ttl time.Duration, quota int) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		quota:  quota,
	}
}

// Get retrieves the value for key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cache key", key)
		}
		return nil, fmt.Errorf("redis get cache entry: %w", err)
	}
	return data, nil
}

// Set stores the value for key with the configured TTL.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if b.quota > 0 && len(value) > b.quota {
		return fmt.Errorf("set %s (%d bytes): %w", key, len(value), cache.ErrQuotaExceeded)
	}
	if err := b.client.Set(ctx, b.prefix+key, value, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cache entry: %w", err)
	}
	return nil
}

// Delete removes the value for key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del cache entry: %w", err)
	}
	return nil
}
