// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior for a single dispatch candidate.
// It is an explicit value passed into each dispatch call; there is no
// ambient or implicit retry wrapping anywhere in the module.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts per candidate.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier for exponential backoff.
	BackoffFactor float64

	// Jitter adds randomness to avoid thundering herd (0.0-1.0).
	Jitter float64

	// RetryIf determines whether an error should be retried.
	// If nil, DefaultRetryable is used.
	RetryIf func(err error) bool
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        DefaultRetryable,
	}
}

// DefaultRetryable reports whether an error is retryable: rate limits,
// server errors, and timeouts. Anything else is treated as permanent.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// Backoff returns the wait duration before the given retry attempt
// (0-based), including jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= p.BackoffFactor
	}
	if max := float64(p.MaxBackoff); backoff > max {
		backoff = max
	}

	if p.Jitter > 0 {
		delta := backoff * p.Jitter
		backoff += (rand.Float64() * 2 * delta) - delta
	}

	return time.Duration(backoff)
}

// shouldRetry applies the policy's predicate, falling back to DefaultRetryable.
func (p RetryPolicy) shouldRetry(err error) bool {
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	return DefaultRetryable(err)
}

// RetryWithBackoff executes fn with exponential backoff retry under the
// given policy. The context is checked between attempts; cancellation
// aborts the wait and returns ctx.Err().
func RetryWithBackoff[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.shouldRetry(err) {
			return zero, err
		}
		if attempt >= policy.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.Backoff(attempt)):
		}
	}

	return zero, lastErr
}
