// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterUnlimitedProviderPassesThrough(t *testing.T) {
	l := NewProviderLimiter()

	assert.False(t, l.Limited("openai"))
	assert.True(t, l.Allow("openai"))
	require.NoError(t, l.Wait(context.Background(), "openai"))
}

func TestLimiterEnforcesBurst(t *testing.T) {
	l := NewProviderLimiter()
	l.SetLimit("anthropic", 1, 2)

	assert.True(t, l.Allow("anthropic"))
	assert.True(t, l.Allow("anthropic"))
	assert.False(t, l.Allow("anthropic"))
}

func TestLimiterWaitRespectsContext(t *testing.T) {
	l := NewProviderLimiter()
	l.SetLimit("openai", 0.001, 1)
	require.True(t, l.Allow("openai")) // drain the burst token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "openai")
	assert.Error(t, err)
}

func TestLimiterRemoval(t *testing.T) {
	l := NewProviderLimiter()
	l.SetLimit("ollama", 5, 1)
	assert.True(t, l.Limited("ollama"))

	l.SetLimit("ollama", 0, 0)
	assert.False(t, l.Limited("ollama"))
}

func TestLimiterIsolatesProviders(t *testing.T) {
	l := NewProviderLimiter()
	l.SetLimit("anthropic", 1, 1)

	assert.True(t, l.Allow("anthropic"))
	assert.False(t, l.Allow("anthropic"))
	// Other providers are unaffected.
	assert.True(t, l.Allow("openai"))
}
