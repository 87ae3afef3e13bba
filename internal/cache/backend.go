// Package cache is the profile-local durable store for cart and wishlist items.
//
// A Backend is a plain key/value store, the analogue of browser-local storage.
// Store layers the item serialization on top of it and never surfaces errors to
// its caller: read failures degrade to an empty collection, write failures are
// logged and dropped. The in-memory state of the engine stays authoritative for
// the session either way.
package cache

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by backends when a write would exceed their capacity.
var ErrQuotaExceeded = errors.New("cache quota exceeded")

// Backend is a synchronous-style key/value store. Get returns an error matching
// apperrors.ErrNotFound when the key is absent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
