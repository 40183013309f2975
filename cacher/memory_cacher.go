package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCacher keeps values in process memory. A singleflight group makes
// concurrent misses for one key share a single fetch.
type MemoryCacher[T any] struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCacher returns an in-memory Cacher.
//
// Parameters:
//   - defaultExpiration: TTL used when GetOrFetch is given a zero ttl
//   - cleanupInterval: How often expired entries are purged
//
// Returns:
//   - A new Cacher backed by go-cache
func NewMemoryCacher[T any](defaultExpiration, cleanupInterval time.Duration) Cacher[T] {
	return &MemoryCacher[T]{
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Cacher.
func (c *MemoryCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T

	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		// A caller that lost the race may find the value already stored.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		fetched, err := fetchFn(ctx)
		if err != nil {
			return zero, err
		}

		if ttl <= 0 {
			ttl = cache.DefaultExpiration
		}
		c.cache.Set(key, fetched, ttl)

		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type in cache for key %s", key)
	}

	return typed, nil
}

// Delete implements Cacher.
func (c *MemoryCacher[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

func (c *MemoryCacher[T]) lookup(key string) (T, bool) {
	var zero T

	v, found := c.cache.Get(key)
	if !found {
		return zero, false
	}

	typed, ok := v.(T)
	return typed, ok
}
