// Package cacher caches values that are expensive to produce, such as full
// copies of the sensor buffer served to HTTP consumers.
package cacher

import (
	"context"
	"time"
)

// FetchFunc produces the value on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values by key and fetches them on a miss. Concurrent misses
// on the same key run fetchFn once.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn and caches
	// its result for ttl.
	//
	// Parameters:
	//   - ctx: Context for cancellation, passed to fetchFn
	//   - key: The cache key
	//   - ttl: How long a fetched value stays cached
	//   - fetchFn: Produces the value on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - An error if fetching or the cache backend fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete drops key so the next GetOrFetch fetches again.
	Delete(ctx context.Context, key string) error
}
