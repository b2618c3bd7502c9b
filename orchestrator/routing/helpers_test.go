// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeClient scripts per-model responses for tests. Responses are
// consumed in order; the last one repeats.
type fakeClient struct {
	provider Provider

	mu      sync.Mutex
	scripts map[string][]fakeResponse
	calls   []string
}

type fakeResponse struct {
	content string
	usage   TokenUsage
	err     error
}

func newFakeClient(p Provider) *fakeClient {
	return &fakeClient{provider: p, scripts: make(map[string][]fakeResponse)}
}

func (c *fakeClient) Provider() Provider { return c.provider }

func (c *fakeClient) on(model string, responses ...fakeResponse) *fakeClient {
	c.scripts[model] = responses
	return c
}

func (c *fakeClient) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.calls = append(c.calls, req.Model)
	script := c.scripts[req.Model]
	var resp fakeResponse
	if len(script) > 0 {
		resp = script[0]
		if len(script) > 1 {
			c.scripts[req.Model] = script[1:]
		}
	} else {
		resp = fakeResponse{content: "ok from " + req.Model, usage: TokenUsage{InputTokens: 100, OutputTokens: 50}}
	}
	c.mu.Unlock()

	if resp.err != nil {
		return nil, resp.err
	}
	return &DispatchResponse{Content: resp.content, Usage: resp.usage}, nil
}

func (c *fakeClient) callCount(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.calls {
		if m == model {
			n++
		}
	}
	return n
}

func ok(content string) fakeResponse {
	return fakeResponse{content: content, usage: TokenUsage{InputTokens: 100, OutputTokens: 50}}
}

func fail(err error) fakeResponse {
	return fakeResponse{err: err}
}

// testProfiles is a small realistic catalog used across tests.
func testProfiles() []ModelProfile {
	return []ModelProfile{
		{
			Ref:               ModelRef{Provider: "anthropic", Model: "claude-sonnet"},
			ContextWindow:     200000,
			InputCostPerMTok:  3.0,
			OutputCostPerMTok: 15.0,
			Capabilities:      []Capability{CapabilityVision, CapabilityFunctionCalling, CapabilityStructuredOutput},
			CodingScore:       92,
			ReasoningScore:    90,
			SpeedRating:       7,
			Maturity:          MaturityProduction,
		},
		{
			Ref:               ModelRef{Provider: "anthropic", Model: "claude-haiku"},
			ContextWindow:     200000,
			InputCostPerMTok:  0.8,
			OutputCostPerMTok: 4.0,
			Capabilities:      []Capability{CapabilityVision, CapabilityFunctionCalling},
			CodingScore:       75,
			ReasoningScore:    72,
			SpeedRating:       9,
			Maturity:          MaturityProduction,
		},
		{
			Ref:               ModelRef{Provider: "openai", Model: "gpt-4o"},
			ContextWindow:     128000,
			InputCostPerMTok:  2.5,
			OutputCostPerMTok: 10.0,
			Capabilities:      []Capability{CapabilityVision, CapabilityFunctionCalling, CapabilityStructuredOutput},
			CodingScore:       88,
			ReasoningScore:    87,
			SpeedRating:       7,
			Maturity:          MaturityProduction,
		},
		{
			Ref:               ModelRef{Provider: "openai", Model: "o4-preview"},
			ContextWindow:     128000,
			InputCostPerMTok:  10.0,
			OutputCostPerMTok: 40.0,
			CodingScore:       90,
			ReasoningScore:    96,
			SpeedRating:       3,
			Maturity:          MaturityExperimental,
		},
		{
			Ref:            ModelRef{Provider: "ollama", Model: "qwen-coder"},
			ContextWindow:  32000,
			CodingScore:    80,
			ReasoningScore: 60,
			SpeedRating:    6,
			Maturity:       MaturityBeta,
			Local:          true,
			LocalSizeBytes: 8 << 30,
		},
	}
}

func mustCatalog(t *testing.T, profiles []ModelProfile) *Catalog {
	t.Helper()
	cat, err := NewCatalog(profiles)
	require.NoError(t, err)
	return cat
}
