package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string]()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestMemoryCacheMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string]()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[int]()

	require.NoError(t, c.Set(ctx, "k", 42, -time.Second))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string]()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGetWithFetch(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string]()

	calls := 0
	fetch := func(ctx context.Context, key string) (string, error) {
		calls++
		return "fetched:" + key, nil
	}

	value, err := GetWithFetch(ctx, c, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "fetched:k", value)
	assert.Equal(t, 1, calls)

	// Second read hits the cache
	value, err = GetWithFetch(ctx, c, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "fetched:k", value)
	assert.Equal(t, 1, calls)
}

func TestGetWithFetchError(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string]()
	wantErr := errors.New("backend down")

	_, err := GetWithFetch(ctx, c, "k", time.Minute,
		func(ctx context.Context, key string) (string, error) {
			return "", wantErr
		})
	assert.ErrorIs(t, err, wantErr)

	// Errors are not cached
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
