// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/orchestrator/routing/sdk"
)

// ErrorKind classifies a dispatch failure. The classification drives
// the fallback executor's advance/retry decision and is recorded on
// every attempt; no internal error escapes the executor boundary as an
// opaque value.
type ErrorKind string

const (
	// ErrorKindConfiguration marks provider credential/auth failures.
	// The provider is negative-cached and same-provider candidates are
	// skipped; no retries.
	ErrorKindConfiguration ErrorKind = "configuration"

	// ErrorKindGate marks explicit-chain entries excluded by
	// disqualification or the blocklist; recorded in the attempt history
	// without dispatching.
	ErrorKindGate ErrorKind = "gate"

	// ErrorKindTransient marks timeouts, rate limits and 5xx responses;
	// retried on the same candidate with backoff.
	ErrorKindTransient ErrorKind = "transient"

	// ErrorKindPermanent marks bad requests and unknown models; the
	// executor advances immediately without retrying.
	ErrorKindPermanent ErrorKind = "permanent"

	// ErrorKindResource marks local memory exhaustion. Normally caught
	// at selection time; surfaced here only if occupancy changed
	// between selection and dispatch.
	ErrorKindResource ErrorKind = "resource"
)

// ClassifyError maps a provider client error to an ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuth():
			return ErrorKindConfiguration
		case apiErr.IsRetryable():
			return ErrorKindTransient
		default:
			return ErrorKindPermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTransient
	}
	if errors.Is(err, ErrBudgetExhausted) || errors.Is(err, ErrModelTooLarge) {
		return ErrorKindResource
	}

	return ErrorKindPermanent
}

// Resident manager sentinel errors.
var (
	// ErrModelTooLarge means the model's estimated size exceeds the
	// entire memory budget; no eviction can help.
	ErrModelTooLarge = errors.New("model exceeds resident memory budget")

	// ErrBudgetExhausted means every resident model is mid-request and
	// nothing can be evicted to make room.
	ErrBudgetExhausted = errors.New("resident memory budget exhausted")
)

// ChainExhaustedError is the terminal structured failure returned when
// every candidate in the fallback chain has been tried (or none was
// selectable). Attempts preserves the full ordered history so callers
// can distinguish "nothing configured" from "everything failed".
type ChainExhaustedError struct {
	RequestID string
	Task      TaskType
	Attempts  []ExecutionAttempt

	// Disqualified lists models excluded at selection time, for the
	// no-candidates case.
	Disqualified []CandidateScore
}

// Error implements the error interface.
func (e *ChainExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no selectable candidates for task %s (%d disqualified)",
			e.Task, len(e.Disqualified))
	}

	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %s", a.Ref, a.Kind)
	}
	return fmt.Sprintf("fallback chain exhausted after %d attempt(s): %s",
		len(e.Attempts), strings.Join(parts, ", "))
}

// AllConfiguration reports whether every failure was a configuration
// failure, i.e. nothing was usable rather than everything broke.
func (e *ChainExhaustedError) AllConfiguration() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if a.Kind != ErrorKindConfiguration {
			return false
		}
	}
	return true
}

// CatalogError reports a rejected catalog load. Loads are
// all-or-nothing: one bad entry fails the whole load.
type CatalogError struct {
	Ref     ModelRef
	Message string
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	if e.Ref != (ModelRef{}) {
		return fmt.Sprintf("catalog entry %s: %s", e.Ref, e.Message)
	}
	return "catalog: " + e.Message
}
