// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *RedisCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "test:availability")
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "openai", Entry{Value: "unavailable", Reason: "unreachable"}, time.Minute))

	entry, ok, err := c.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "unavailable", entry.Value)
	assert.Equal(t, "unreachable", entry.Reason)
}

func TestRedisCacheMiss(t *testing.T) {
	c := newTestRedis(t)

	_, ok, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	c := NewRedisCache(client, "")

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "anthropic", Entry{Value: "available"}, time.Minute))

	srv.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "anthropic")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheDelete(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ollama", Entry{Value: "available"}, time.Minute))
	require.NoError(t, c.Delete(ctx, "ollama"))

	_, ok, err := c.Get(ctx, "ollama")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheKeyPrefixIsolation(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	a := NewRedisCache(client, "deploy-a")
	b := NewRedisCache(client, "deploy-b")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "openai", Entry{Value: "available"}, time.Minute))

	_, ok, err := b.Get(ctx, "openai")
	require.NoError(t, err)
	assert.False(t, ok)
}
