// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/metrics"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/usage"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/orchestrator/routing/sdk"
)

// ExecutorState names the fallback executor's states. Exposed for
// logging and tests; transitions are internal.
type ExecutorState string

const (
	StateSelecting   ExecutorState = "SELECTING"
	StateDispatching ExecutorState = "DISPATCHING"
	StateRetrying    ExecutorState = "RETRYING"
	StateSuccess     ExecutorState = "SUCCESS"
	StateExhausted   ExecutorState = "EXHAUSTED"
)

// ExecutorConfig bounds the fallback executor.
type ExecutorConfig struct {
	// ChainWidth is the number of ranked candidates considered when no
	// explicit fallback chain is supplied.
	ChainWidth int

	// MaxTotalAttempts is the hard ceiling on dispatch attempts across
	// the whole chain, bounding worst-case latency regardless of how
	// many candidates exist.
	MaxTotalAttempts int

	// PerAttemptTimeout bounds each dispatch; exceeding it is a
	// transient error subject to the retry policy.
	PerAttemptTimeout time.Duration

	// Retry is the per-candidate retry policy for transient failures.
	Retry sdk.RetryPolicy
}

// DefaultExecutorConfig returns the default execution bounds.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		ChainWidth:        5,
		MaxTotalAttempts:  10,
		PerAttemptTimeout: 60 * time.Second,
		Retry:             sdk.DefaultRetryPolicy(),
	}
}

// FallbackExecutor drives sequential dispatch-with-retry across a
// ranked candidate list. Retries within one logical request are
// strictly sequential; two providers are never raced for the same
// call, to avoid duplicate billable cost.
type FallbackExecutor struct {
	cfg      ExecutorConfig
	clients  map[Provider]ProviderClient
	selector *Selector
	tracker  *AvailabilityTracker
	resident *ResidentManager
	recorder usage.Recorder
	limiter  *sdk.ProviderLimiter
	metrics  *metrics.Collector
	log      zerolog.Logger
}

// ExecOptions carries per-request execution inputs.
type ExecOptions struct {
	// Chain supplies an explicit operator-configured fallback chain
	// instead of ranked selection.
	Chain *FallbackChain

	// SessionID labels usage records.
	SessionID string
}

// newFallbackExecutor wires the executor; recorder, limiter, resident
// and metrics may be nil.
func newFallbackExecutor(cfg ExecutorConfig, clients map[Provider]ProviderClient, selector *Selector,
	tracker *AvailabilityTracker, resident *ResidentManager, recorder usage.Recorder,
	limiter *sdk.ProviderLimiter, collector *metrics.Collector, log zerolog.Logger) *FallbackExecutor {
	return &FallbackExecutor{
		cfg:      cfg,
		clients:  clients,
		selector: selector,
		tracker:  tracker,
		resident: resident,
		recorder: recorder,
		limiter:  limiter,
		metrics:  collector,
		log:      log,
	}
}

// Execute runs the fallback chain for one logical request. It returns
// either a successful ExecutionResult or a *ChainExhaustedError; no
// other error shape crosses this boundary.
func (e *FallbackExecutor) Execute(ctx context.Context, req TaskRequirement, prompt string, opts ExecOptions) (*ExecutionResult, error) {
	requestID := uuid.NewString()
	log := e.log.With().Str("request_id", requestID).Str("task", string(req.Primary)).Logger()

	// SELECTING
	candidates, rejected, gated := e.selectCandidates(req, opts.Chain)
	log.Debug().Int("candidates", len(candidates)).Int("disqualified", len(rejected)).
		Str("state", string(StateSelecting)).Msg("candidates selected")

	if len(candidates) == 0 {
		return nil, &ChainExhaustedError{
			RequestID:    requestID,
			Task:         req.Primary,
			Attempts:     gated,
			Disqualified: rejected,
		}
	}

	var (
		attempts      []ExecutionAttempt
		totalAttempts int
		skipProviders = make(map[Provider]struct{})
	)

	// Gated chain entries go into the history so the caller sees why a
	// pinned model was never tried. They cost no dispatch budget.
	for _, a := range gated {
		attempts = append(attempts, a)
		e.record(ctx, requestID, opts.SessionID, a)
	}

	for idx, candidate := range candidates {
		if totalAttempts >= e.cfg.MaxTotalAttempts {
			break
		}
		profile := candidate.Profile
		if _, skip := skipProviders[profile.Ref.Provider]; skip {
			continue
		}

		client, ok := e.clients[profile.Ref.Provider]
		if !ok {
			// Catalog lists a provider no client was injected for.
			attempt := failedAttempt(profile.Ref, ErrorKindConfiguration, "no client for provider")
			attempts = append(attempts, attempt)
			e.record(ctx, requestID, opts.SessionID, attempt)
			skipProviders[profile.Ref.Provider] = struct{}{}
			totalAttempts++
			continue
		}

		// DISPATCHING, with bounded per-candidate retries (RETRYING).
		content, outcome := e.dispatchCandidate(ctx, log, client, profile, prompt, &totalAttempts, &attempts, requestID, opts.SessionID)
		switch outcome {
		case ErrorKind(""):
			// SUCCESS
			result := &ExecutionResult{
				RequestID:    requestID,
				Content:      content,
				Model:        profile.Ref,
				TotalCostUSD: sumCosts(attempts),
				Attempts:     attempts,
				Degraded:     idx > 0 || len(attempts) > 1,
			}
			log.Info().Str("model", profile.Ref.String()).Int("attempts", len(attempts)).
				Bool("degraded", result.Degraded).Str("state", string(StateSuccess)).
				Msg("request completed")
			return result, nil

		case ErrorKindConfiguration:
			// Skip remaining candidates on this provider; negative-cache
			// handled inside dispatchCandidate.
			skipProviders[profile.Ref.Provider] = struct{}{}
		}
	}

	// EXHAUSTED
	log.Warn().Int("attempts", len(attempts)).Str("state", string(StateExhausted)).Msg("fallback chain exhausted")
	return nil, &ChainExhaustedError{
		RequestID: requestID,
		Task:      req.Primary,
		Attempts:  attempts,
	}
}

// selectCandidates resolves the candidate list from an explicit chain
// or ranked selection. For chains it also returns one gate attempt per
// chain entry that disqualification or the blocklist excluded.
func (e *FallbackExecutor) selectCandidates(req TaskRequirement, chain *FallbackChain) ([]CandidateScore, []CandidateScore, []ExecutionAttempt) {
	if chain == nil {
		ranked, rejected := e.selector.Evaluate(req)
		if e.cfg.ChainWidth > 0 && len(ranked) > e.cfg.ChainWidth {
			ranked = ranked[:e.cfg.ChainWidth]
		}
		return ranked, rejected, nil
	}

	// An explicit chain is still subject to disqualification and the
	// blocklist; the chain fixes order, not eligibility.
	ranked, rejected := e.selector.Evaluate(req)
	byRef := make(map[ModelRef]CandidateScore, len(ranked))
	for _, cs := range ranked {
		byRef[cs.Profile.Ref] = cs
	}
	rejectedByRef := make(map[ModelRef]CandidateScore, len(rejected))
	for _, cs := range rejected {
		rejectedByRef[cs.Profile.Ref] = cs
	}

	var out []CandidateScore
	var gated []ExecutionAttempt
	for _, ref := range chain.Models {
		switch {
		case e.selector.Blocked(ref):
			gated = append(gated, failedAttempt(ref, ErrorKindGate, "blocklisted"))
		default:
			if cs, ok := byRef[ref]; ok {
				out = append(out, cs)
			} else if cs, ok := rejectedByRef[ref]; ok {
				gated = append(gated, failedAttempt(ref, ErrorKindGate, string(cs.Reason)))
			}
		}
	}
	return out, rejected, gated
}

// dispatchCandidate tries one candidate, retrying transient failures
// up to the policy budget. Returns the response content and the empty
// kind on success, or the final error kind after the candidate is
// abandoned.
func (e *FallbackExecutor) dispatchCandidate(ctx context.Context, log zerolog.Logger, client ProviderClient,
	profile ModelProfile, prompt string,
	totalAttempts *int, attempts *[]ExecutionAttempt, requestID, sessionID string) (string, ErrorKind) {

	// Pin local models for the whole candidate, covering retries.
	if profile.Local && e.resident != nil {
		if err := e.resident.Acquire(profile.Ref, profile.LocalSizeBytes); err != nil {
			attempt := failedAttempt(profile.Ref, ErrorKindResource, err.Error())
			*attempts = append(*attempts, attempt)
			e.record(ctx, requestID, sessionID, attempt)
			*totalAttempts++
			return "", ErrorKindResource
		}
		defer e.resident.Release(profile.Ref)
	}

	for retry := 0; ; retry++ {
		if *totalAttempts >= e.cfg.MaxTotalAttempts {
			return "", ErrorKindTransient
		}
		*totalAttempts++

		attempt, content, err := e.dispatchOnce(ctx, client, profile, prompt)
		*attempts = append(*attempts, attempt)
		e.record(ctx, requestID, sessionID, attempt)

		if err == nil {
			return content, ""
		}

		kind := attempt.Kind
		log.Debug().Str("model", profile.Ref.String()).Str("kind", string(kind)).
			Int("retry", retry).Err(err).Str("state", string(StateDispatching)).
			Msg("dispatch failed")

		switch kind {
		case ErrorKindConfiguration:
			// Fast failover: negative-cache the provider for its TTL so
			// nothing retries it until the window expires.
			e.tracker.MarkUnreachable(ctx, profile.Ref.Provider, ReasonUnreachable)
			return "", kind

		case ErrorKindTransient:
			if retry >= e.cfg.Retry.MaxRetries {
				return "", kind
			}
			// RETRYING: back off, then loop to DISPATCHING.
			select {
			case <-ctx.Done():
				return "", kind
			case <-time.After(e.cfg.Retry.Backoff(retry)):
			}

		default:
			// Permanent and resource errors advance immediately.
			return "", kind
		}
	}
}

// dispatchOnce performs a single timed dispatch and builds its record.
func (e *FallbackExecutor) dispatchOnce(ctx context.Context, client ProviderClient, profile ModelProfile, prompt string) (ExecutionAttempt, string, error) {
	attempt := ExecutionAttempt{
		ID:        uuid.NewString(),
		Ref:       profile.Ref,
		StartedAt: time.Now(),
	}

	dispatchCtx := ctx
	if e.cfg.PerAttemptTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, e.cfg.PerAttemptTimeout)
		defer cancel()
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(dispatchCtx, string(profile.Ref.Provider)); err != nil {
			attempt.FinishedAt = time.Now()
			attempt.Kind = ErrorKindTransient
			attempt.Err = err.Error()
			e.observe(attempt)
			return attempt, "", err
		}
	}

	resp, err := client.Dispatch(dispatchCtx, DispatchRequest{
		Prompt: prompt,
		Model:  profile.Ref.Model,
	})
	attempt.FinishedAt = time.Now()

	if err != nil {
		attempt.Kind = ClassifyError(err)
		attempt.Err = err.Error()
		e.observe(attempt)
		return attempt, "", err
	}

	attempt.Usage = resp.Usage
	attempt.CostUSD = profile.AttemptCost(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	e.observe(attempt)
	return attempt, resp.Content, nil
}

// record forwards the attempt to the usage sink. The sink must never
// drop records; a sink error is logged, not propagated into routing.
func (e *FallbackExecutor) record(ctx context.Context, requestID, sessionID string, a ExecutionAttempt) {
	if e.recorder == nil {
		return
	}
	outcome := usage.OutcomeSuccess
	if a.Kind != "" {
		outcome = string(a.Kind)
	}
	err := e.recorder.Record(ctx, usage.Attempt{
		ID:           a.ID,
		RequestID:    requestID,
		SessionID:    sessionID,
		Provider:     string(a.Ref.Provider),
		Model:        a.Ref.Model,
		StartedAt:    a.StartedAt,
		FinishedAt:   a.FinishedAt,
		Outcome:      outcome,
		InputTokens:  a.Usage.InputTokens,
		OutputTokens: a.Usage.OutputTokens,
		CostUSD:      a.CostUSD,
	})
	if err != nil {
		e.log.Error().Err(err).Str("attempt_id", a.ID).Msg("usage record failed")
	}
}

func (e *FallbackExecutor) observe(a ExecutionAttempt) {
	if e.metrics == nil {
		return
	}
	outcome := "success"
	if a.Kind != "" {
		outcome = string(a.Kind)
	}
	e.metrics.AttemptsTotal.WithLabelValues(string(a.Ref.Provider), a.Ref.Model, outcome).Inc()
	e.metrics.DispatchDuration.WithLabelValues(string(a.Ref.Provider)).
		Observe(a.FinishedAt.Sub(a.StartedAt).Seconds())
}

func failedAttempt(ref ModelRef, kind ErrorKind, msg string) ExecutionAttempt {
	now := time.Now()
	return ExecutionAttempt{
		ID:         uuid.NewString(),
		Ref:        ref,
		StartedAt:  now,
		FinishedAt: now,
		Kind:       kind,
		Err:        msg,
	}
}

func sumCosts(attempts []ExecutionAttempt) float64 {
	var total float64
	for _, a := range attempts {
		total += a.CostUSD
	}
	return total
}
