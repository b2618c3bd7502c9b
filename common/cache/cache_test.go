// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "openai", Entry{Value: "available"}, time.Minute))

	entry, ok, err := c.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "available", entry.Value)
	assert.False(t, entry.ExpiresAt.IsZero())
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()

	_, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "anthropic", Entry{Value: "unavailable", Reason: "unreachable"}, time.Minute))

	_, ok, err := c.Get(ctx, "anthropic")
	require.NoError(t, err)
	require.True(t, ok)

	// Advance past the TTL; the entry must not be served and is swept.
	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "anthropic")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ollama", Entry{Value: "available"}, time.Minute))
	require.NoError(t, c.Delete(ctx, "ollama"))
	require.NoError(t, c.Delete(ctx, "ollama")) // missing key is not an error

	_, ok, _ := c.Get(ctx, "ollama")
	assert.False(t, ok)
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", Entry{Value: "v"}, 0))

	now = now.Add(24 * time.Hour)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = c.Set(ctx, "shared", Entry{Value: "available"}, time.Minute)
		}
	}()
	for i := 0; i < 500; i++ {
		_, _, _ = c.Get(ctx, "shared")
	}
	<-done
}
