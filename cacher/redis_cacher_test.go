package cacher

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestRedisCacher_BackendErrorsAreReturned(t *testing.T) {
	c := NewRedisCacher[string](unreachableRedis(t), "sensorstream:")
	ctx := context.Background()

	fetched := false
	_, err := c.GetOrFetch(ctx, "snapshot", time.Second, func(ctx context.Context) (string, error) {
		fetched = true
		return "never cached", nil
	})
	assert.Error(t, err)
	assert.False(t, fetched)

	assert.Error(t, c.Delete(ctx, "snapshot"))
}
