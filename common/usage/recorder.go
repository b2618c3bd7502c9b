// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

// Package usage records dispatch attempts for downstream cost
// reporting. The recorder is the write side; aggregation for external
// reporting is the read side. Writes must never be dropped.
package usage

import (
	"context"
	"sync"
)

// Recorder accepts attempt records. Implementations must be safe for
// concurrent appends and must not drop records; monotonic ordering
// across writers is not required.
type Recorder interface {
	Record(ctx context.Context, attempt Attempt) error
}

// MemoryRecorder is an in-process append-only Recorder, suitable for
// embedding and tests. It also serves the read side directly.
type MemoryRecorder struct {
	attempts []Attempt
	mu       sync.Mutex
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record implements Recorder.
func (r *MemoryRecorder) Record(_ context.Context, attempt Attempt) error {
	r.mu.Lock()
	r.attempts = append(r.attempts, attempt)
	r.mu.Unlock()
	return nil
}

// Attempts returns a copy of all records matching the filter.
func (r *MemoryRecorder) Attempts(filter Filter) []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Attempt
	for _, a := range r.attempts {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// Summary aggregates records matching the filter.
func (r *MemoryRecorder) Summary(filter Filter) Summary {
	return Summarize(r.Attempts(filter))
}

// Len returns the number of recorded attempts.
func (r *MemoryRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}
