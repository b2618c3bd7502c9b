// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/usage"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/orchestrator/routing/sdk"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/shared/logger"
)

type executorHarness struct {
	executor *FallbackExecutor
	tracker  *AvailabilityTracker
	recorder *usage.MemoryRecorder
	selector *Selector
}

func newExecutorHarness(t *testing.T, clients map[Provider]ProviderClient, mutate func(*ExecutorConfig)) *executorHarness {
	t.Helper()

	cfg := DefaultExecutorConfig()
	cfg.Retry = sdk.RetryPolicy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1}
	if mutate != nil {
		mutate(&cfg)
	}

	tracker := NewAvailabilityTracker(nil, time.Minute, nil, nil, logger.Nop())
	availability := func(p Provider) ProviderAvailability {
		return tracker.Check(context.Background(), p)
	}
	handle := NewCatalogHandle(mustCatalog(t, testProfiles()))
	selector := NewSelector(handle, SelectorConfig{Scorer: DefaultScorerConfig()}, availability, nil)

	recorder := usage.NewMemoryRecorder()
	exec := newFallbackExecutor(cfg, clients, selector, tracker, nil, recorder, nil, nil, logger.Nop())
	return &executorHarness{executor: exec, tracker: tracker, recorder: recorder, selector: selector}
}

func codeGenReq() TaskRequirement {
	return TaskRequirement{Primary: TaskCodeGeneration, MinContextTokens: 4096}
}

func TestExecuteFirstCandidateSucceeds(t *testing.T) {
	anthropic := newFakeClient("anthropic").on("claude-sonnet", ok("answer"))
	clients := map[Provider]ProviderClient{
		"anthropic": anthropic,
		"openai":    newFakeClient("openai"),
		"ollama":    newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, nil)

	result, err := h.executor.Execute(context.Background(), codeGenReq(), "implement a widget", ExecOptions{SessionID: "sess-1"})
	require.NoError(t, err)

	assert.Equal(t, "answer", result.Content)
	assert.Equal(t, ModelRef{Provider: "anthropic", Model: "claude-sonnet"}, result.Model)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, result.AttemptCount())
	assert.NotEmpty(t, result.RequestID)

	// Every attempt lands in the usage sink with the session label.
	records := h.recorder.Attempts(usage.Filter{SessionID: "sess-1"})
	require.Len(t, records, 1)
	assert.Equal(t, usage.OutcomeSuccess, records[0].Outcome)
	assert.Equal(t, 100, records[0].InputTokens)
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	anthropic := newFakeClient("anthropic").on("claude-sonnet",
		fail(&sdk.APIError{StatusCode: 503, Message: "overloaded"}),
		ok("second try"),
	)
	clients := map[Provider]ProviderClient{
		"anthropic": anthropic,
		"openai":    newFakeClient("openai"),
		"ollama":    newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, nil)

	result, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{})
	require.NoError(t, err)

	assert.Equal(t, "second try", result.Content)
	assert.Equal(t, 2, result.AttemptCount())
	assert.True(t, result.Degraded) // a retry happened; disclosure is never silent
	assert.Equal(t, 2, anthropic.callCount("claude-sonnet"))

	assert.Equal(t, ErrorKindTransient, result.Attempts[0].Kind)
	assert.True(t, result.Attempts[1].Succeeded())
}

func TestExecutePermanentAdvancesWithoutRetry(t *testing.T) {
	anthropic := newFakeClient("anthropic").on("claude-sonnet",
		fail(&sdk.APIError{Code: sdk.ErrCodeInvalidRequest, StatusCode: 400}),
	)
	// claude-haiku is the next anthropic candidate.
	clients := map[Provider]ProviderClient{
		"anthropic": anthropic,
		"openai":    newFakeClient("openai"),
		"ollama":    newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, nil)

	result, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{})
	require.NoError(t, err)

	// The failing model was tried exactly once.
	assert.Equal(t, 1, anthropic.callCount("claude-sonnet"))
	assert.True(t, result.Degraded)
	assert.NotEqual(t, "claude-sonnet", result.Model.Model)
}

func TestExecuteAuthFailureSkipsProvider(t *testing.T) {
	anthropic := newFakeClient("anthropic").on("claude-sonnet",
		fail(&sdk.APIError{StatusCode: 401, Code: sdk.ErrCodeAuth}),
	)
	openai := newFakeClient("openai").on("gpt-4o", ok("rescued"))
	clients := map[Provider]ProviderClient{
		"anthropic": anthropic,
		"openai":    openai,
		"ollama":    newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, nil)

	result, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{})
	require.NoError(t, err)

	assert.Equal(t, "rescued", result.Content)
	// No retry against the failed credential, and the same provider's
	// other model is never tried.
	assert.Equal(t, 1, anthropic.callCount("claude-sonnet"))
	assert.Equal(t, 0, anthropic.callCount("claude-haiku"))

	// The provider is negative-cached for the TTL window.
	assert.False(t, h.tracker.Check(context.Background(), "anthropic").Available)

	// Subsequent selections disqualify the provider outright.
	ranked, _ := h.selector.Evaluate(codeGenReq())
	for _, cs := range ranked {
		assert.NotEqual(t, Provider("anthropic"), cs.Profile.Ref.Provider)
	}
}

func TestExecuteMaxAttemptCeiling(t *testing.T) {
	transient := func() fakeResponse { return fail(&sdk.APIError{StatusCode: 503}) }
	anthropic := newFakeClient("anthropic").
		on("claude-sonnet", transient()).
		on("claude-haiku", transient())
	openai := newFakeClient("openai").on("gpt-4o", transient())
	clients := map[Provider]ProviderClient{
		"anthropic": anthropic,
		"openai":    openai,
		"ollama":    newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, func(cfg *ExecutorConfig) {
		cfg.MaxTotalAttempts = 3
		cfg.Retry.MaxRetries = 5 // per-candidate budget alone would exceed the ceiling
	})

	_, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{})
	require.Error(t, err)

	var exhausted *ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 3)
	assert.Equal(t, 3, h.recorder.Len())
}

func TestExecuteExhaustedKeepsFullHistory(t *testing.T) {
	anthropic := newFakeClient("anthropic").
		on("claude-sonnet", fail(&sdk.APIError{Code: sdk.ErrCodeInvalidRequest})).
		on("claude-haiku", fail(&sdk.APIError{Code: sdk.ErrCodeInvalidRequest}))
	openai := newFakeClient("openai").on("gpt-4o", fail(&sdk.APIError{Code: sdk.ErrCodeModelNotFound}))
	ollama := newFakeClient("ollama").on("qwen-coder", fail(&sdk.APIError{Code: sdk.ErrCodeUnavailable}))
	clients := map[Provider]ProviderClient{
		"anthropic": anthropic, "openai": openai, "ollama": ollama,
	}
	h := newExecutorHarness(t, clients, func(cfg *ExecutorConfig) {
		cfg.Retry.MaxRetries = 0
	})

	_, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{})
	var exhausted *ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)

	// One attempt per candidate, in ranked order.
	require.Len(t, exhausted.Attempts, 4)
	assert.Equal(t, "claude-sonnet", exhausted.Attempts[0].Ref.Model)
	assert.False(t, exhausted.AllConfiguration())

	// The failed run still recorded everything.
	assert.Equal(t, 4, h.recorder.Len())
}

func TestExecuteNoCandidates(t *testing.T) {
	clients := map[Provider]ProviderClient{"anthropic": newFakeClient("anthropic")}
	h := newExecutorHarness(t, clients, nil)

	// Nothing in the catalog has a big enough context window.
	req := TaskRequirement{Primary: TaskGeneral, MinContextTokens: 10_000_000}
	_, err := h.executor.Execute(context.Background(), req, "x", ExecOptions{})

	var exhausted *ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Empty(t, exhausted.Attempts)
	assert.NotEmpty(t, exhausted.Disqualified)
}

func TestExecuteCostSumInvariant(t *testing.T) {
	anthropic := newFakeClient("anthropic").on("claude-sonnet",
		fakeResponse{err: &sdk.APIError{StatusCode: 500}},
		ok("done"),
	)
	clients := map[Provider]ProviderClient{
		"anthropic": anthropic,
		"openai":    newFakeClient("openai"),
		"ollama":    newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, nil)

	result, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{})
	require.NoError(t, err)

	var sum float64
	for _, a := range result.Attempts {
		sum += a.CostUSD
	}
	assert.InDelta(t, sum, result.TotalCostUSD, 1e-12)
	// claude-sonnet: 100 in * $3/M + 50 out * $15/M
	assert.InDelta(t, 0.0003+0.00075, result.TotalCostUSD, 1e-9)
}

func TestExecuteExplicitChainOrder(t *testing.T) {
	openai := newFakeClient("openai").on("gpt-4o", ok("chain pick"))
	clients := map[Provider]ProviderClient{
		"anthropic": newFakeClient("anthropic"),
		"openai":    openai,
		"ollama":    newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, nil)

	chain := NewFallbackChain(TaskCodeGeneration,
		ModelRef{Provider: "openai", Model: "gpt-4o"},
		ModelRef{Provider: "anthropic", Model: "claude-sonnet"},
	)
	result, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{Chain: &chain})
	require.NoError(t, err)

	// The chain fixes order even though claude-sonnet outscores gpt-4o.
	assert.Equal(t, "gpt-4o", result.Model.Model)
}

func TestExecuteChainStillDisqualifies(t *testing.T) {
	clients := map[Provider]ProviderClient{
		"anthropic": newFakeClient("anthropic"),
		"openai":    newFakeClient("openai"),
		"ollama":    newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, nil)

	// o4-preview is experimental and gated; the chain cannot resurrect it.
	chain := NewFallbackChain(TaskCodeGeneration,
		ModelRef{Provider: "openai", Model: "o4-preview"},
		ModelRef{Provider: "anthropic", Model: "claude-sonnet"},
	)
	result, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{Chain: &chain})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", result.Model.Model)

	// The gated entry shows up in the history as a gate attempt rather
	// than vanishing silently, and the result is marked degraded.
	require.Equal(t, 2, result.AttemptCount())
	assert.Equal(t, ErrorKindGate, result.Attempts[0].Kind)
	assert.Equal(t, ModelRef{Provider: "openai", Model: "o4-preview"}, result.Attempts[0].Ref)
	assert.True(t, result.Degraded)
}

func TestExecuteResourceFailureAdvances(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.Retry = sdk.RetryPolicy{MaxRetries: 0, InitialBackoff: time.Millisecond, BackoffFactor: 1}

	tracker := NewAvailabilityTracker(nil, time.Minute, nil, nil, logger.Nop())
	handle := NewCatalogHandle(mustCatalog(t, testProfiles()))
	// Residency is deliberately not wired into the selector here, so the
	// local model survives selection and Acquire fails at dispatch time.
	selector := NewSelector(handle, SelectorConfig{Scorer: DefaultScorerConfig()}, nil, nil)
	resident := NewResidentManager(1<<30, logger.Nop(), nil) // 1 GiB, qwen needs 8

	anthropic := newFakeClient("anthropic").on("claude-sonnet", ok("fallback"))
	clients := map[Provider]ProviderClient{
		"anthropic": anthropic,
		"openai":    newFakeClient("openai"),
		"ollama":    newFakeClient("ollama"),
	}
	recorder := usage.NewMemoryRecorder()
	exec := newFallbackExecutor(cfg, clients, selector, tracker, resident, recorder, nil, nil, logger.Nop())

	chain := NewFallbackChain(TaskCodeGeneration,
		ModelRef{Provider: "ollama", Model: "qwen-coder"},
		ModelRef{Provider: "anthropic", Model: "claude-sonnet"},
	)
	req := TaskRequirement{Primary: TaskCodeGeneration, MinContextTokens: 4096}
	result, err := exec.Execute(context.Background(), req, "implement", ExecOptions{Chain: &chain})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet", result.Model.Model)
	require.Equal(t, 2, result.AttemptCount())
	assert.Equal(t, ErrorKindResource, result.Attempts[0].Kind)

	// The resource failure was recorded too.
	assert.Equal(t, 2, recorder.Len())
}

func TestExecuteMissingClientSkipsProvider(t *testing.T) {
	// No anthropic client injected at all.
	openai := newFakeClient("openai").on("gpt-4o", ok("covered"))
	clients := map[Provider]ProviderClient{
		"openai": openai,
		"ollama": newFakeClient("ollama"),
	}
	h := newExecutorHarness(t, clients, nil)

	result, err := h.executor.Execute(context.Background(), codeGenReq(), "implement", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", result.Model.Model)

	// One configuration attempt for the missing client, then success.
	assert.Equal(t, ErrorKindConfiguration, result.Attempts[0].Kind)
}
