// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// ProviderLimiter enforces a client-side requests-per-second ceiling per
// provider. Dispatch paths call Wait before sending; providers without a
// configured limit pass through immediately.
type ProviderLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewProviderLimiter creates an empty provider limiter.
func NewProviderLimiter() *ProviderLimiter {
	return &ProviderLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetLimit configures the requests-per-second limit and burst for a
// provider. A non-positive rps removes the limit.
func (l *ProviderLimiter) SetLimit(provider string, rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rps <= 0 {
		delete(l.limiters, provider)
		return
	}
	if burst < 1 {
		burst = 1
	}
	l.limiters[provider] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until the provider's limiter permits a request or the
// context is cancelled. Unlimited providers return immediately.
func (l *ProviderLimiter) Wait(ctx context.Context, provider string) error {
	l.mu.RLock()
	limiter, ok := l.limiters[provider]
	l.mu.RUnlock()

	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow reports whether a request for the provider would be admitted
// right now, consuming a token if so.
func (l *ProviderLimiter) Allow(provider string) bool {
	l.mu.RLock()
	limiter, ok := l.limiters[provider]
	l.mu.RUnlock()

	if !ok {
		return true
	}
	return limiter.Allow()
}

// Limited reports whether the provider has a configured limit.
func (l *ProviderLimiter) Limited(provider string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.limiters[provider]
	return ok
}
