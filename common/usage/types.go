// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package usage

import "time"

// Attempt is one recorded dispatch attempt. Records are append-only:
// once written they are never mutated or deleted by this module.
type Attempt struct {
	// ID uniquely identifies the attempt.
	ID string

	// RequestID groups the attempts of one logical request.
	RequestID string

	// SessionID is the caller-supplied session, if any.
	SessionID string

	// Provider and Model identify the dispatched candidate.
	Provider string
	Model    string

	// StartedAt and FinishedAt bound the dispatch.
	StartedAt  time.Time
	FinishedAt time.Time

	// Outcome is "success" or the error kind ("transient", "permanent",
	// "configuration", "gate", "resource").
	Outcome string

	// InputTokens and OutputTokens are the reported token usage.
	InputTokens  int
	OutputTokens int

	// CostUSD is the derived cost of this attempt.
	CostUSD float64
}

// Latency returns the attempt duration.
func (a Attempt) Latency() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// Succeeded reports whether the attempt completed successfully.
func (a Attempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// OutcomeSuccess is the outcome value for a successful attempt.
const OutcomeSuccess = "success"

// Filter selects attempts for aggregation. Zero values match everything.
type Filter struct {
	SessionID string
	RequestID string
	Provider  string
	Model     string
	Since     time.Time
	Until     time.Time
}

// Matches reports whether the attempt satisfies the filter.
func (f Filter) Matches(a Attempt) bool {
	if f.SessionID != "" && a.SessionID != f.SessionID {
		return false
	}
	if f.RequestID != "" && a.RequestID != f.RequestID {
		return false
	}
	if f.Provider != "" && a.Provider != f.Provider {
		return false
	}
	if f.Model != "" && a.Model != f.Model {
		return false
	}
	if !f.Since.IsZero() && a.StartedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !a.StartedAt.Before(f.Until) {
		return false
	}
	return true
}

// Summary aggregates attempt records for reporting.
type Summary struct {
	Attempts     int                `json:"attempts"`
	Successes    int                `json:"successes"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	CostUSD      float64            `json:"cost_usd"`
	ByModel      map[string]int     `json:"by_model"`
	CostByModel  map[string]float64 `json:"cost_by_model"`
}

// Summarize folds a set of attempts into a Summary.
func Summarize(attempts []Attempt) Summary {
	s := Summary{
		ByModel:     make(map[string]int),
		CostByModel: make(map[string]float64),
	}
	for _, a := range attempts {
		key := a.Provider + "/" + a.Model
		s.Attempts++
		if a.Succeeded() {
			s.Successes++
		}
		s.InputTokens += int64(a.InputTokens)
		s.OutputTokens += int64(a.OutputTokens)
		s.CostUSD += a.CostUSD
		s.ByModel[key]++
		s.CostByModel[key] += a.CostUSD
	}
	return s
}
