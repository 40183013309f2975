package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// redisCacher stores JSON-encoded values in Redis under prefix+key, so
// several processes can share one snapshot.
type redisCacher[T any] struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

// NewRedisCacher returns a Cacher backed by Redis.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	snapshots := NewRedisCacher[string](client, "sensorstream:")
func NewRedisCacher[T any](client *redis.Client, prefix string) Cacher[T] {
	return &redisCacher[T]{
		client: client,
		prefix: prefix,
	}
}

// GetOrFetch implements Cacher. Misses within one process are collapsed by
// singleflight; the fetched value is written with SET and ttl.
func (c *redisCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T

	v, found, err := c.get(ctx, key)
	if err != nil {
		return zero, err
	}
	if found {
		return v, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		fetched, err := fetchFn(ctx)
		if err != nil {
			return zero, err
		}

		data, err := json.Marshal(fetched)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal value: %w", err)
		}

		if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
			return zero, fmt.Errorf("failed to cache value: %w", err)
		}

		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	return val.(T), nil
}

// Delete implements Cacher.
func (c *redisCacher[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

func (c *redisCacher[T]) get(ctx context.Context, key string) (T, bool, error) {
	var result T

	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return result, false, nil
	}
	if err != nil {
		return result, false, fmt.Errorf("redis get error: %w", err)
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return result, true, nil
}
