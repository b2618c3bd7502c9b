// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := RetryWithBackoff(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &APIError{Code: ErrCodeRateLimit}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &APIError{Code: ErrCodeServerError}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &APIError{Code: ErrCodeInvalidRequest}
	_, err := RetryWithBackoff(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrCodeInvalidRequest, apiErr.Code)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// A backoff far longer than the test so the cancel lands mid-wait;
	// MaxBackoff must rise with it or the cap defeats the point.
	policy := fastPolicy()
	policy.InitialBackoff = time.Minute
	policy.MaxBackoff = time.Minute

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := RetryWithBackoff(ctx, policy, func(ctx context.Context) (int, error) {
			calls++
			return 0, &APIError{Code: ErrCodeTimeout}
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry did not abort on cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestRetryCustomPredicate(t *testing.T) {
	special := errors.New("flaky")
	policy := fastPolicy()
	policy.RetryIf = func(err error) bool { return errors.Is(err, special) }

	calls := 0
	result, err := RetryWithBackoff(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", special
		}
		return "recovered", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 2, calls)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	// attempt 5 would be 3.2s unclamped
	assert.Equal(t, time.Second, p.Backoff(5))
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	p := RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}

	for i := 0; i < 100; i++ {
		b := p.Backoff(0)
		assert.GreaterOrEqual(t, b, 90*time.Millisecond)
		assert.LessOrEqual(t, b, 110*time.Millisecond)
	}
}
