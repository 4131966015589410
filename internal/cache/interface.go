package cache

import (
	"context"
	"time"
)

// Cache is a generic key/value cache with TTL support.
type Cache[T any] interface {
	// Get retrieves a value. Returns ErrCacheMiss when absent or expired.
	Get(ctx context.Context, key string) (T, error)

	// Set stores a value with a TTL.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
}

// GetWithFetch implements the cache-aside pattern over any Cache: on miss,
// fetch is called and the result stored before being returned.
func GetWithFetch[T any](
	ctx context.Context,
	c Cache[T],
	key string,
	ttl time.Duration,
	fetch func(ctx context.Context, key string) (T, error),
) (T, error) {
	if value, err := c.Get(ctx, key); err == nil {
		return value, nil
	}
	value, err := fetch(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}
