// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import "context"

// DispatchRequest is the uniform request sent to every provider client.
type DispatchRequest struct {
	// Prompt is the user input.
	Prompt string `json:"prompt"`

	// Model is the provider-side model identifier to invoke.
	Model string `json:"model"`

	// MaxTokens limits the response length; 0 uses provider defaults.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Metadata carries provider-specific options.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DispatchResponse is the uniform response from a provider client.
type DispatchResponse struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Usage is the reported token consumption.
	Usage TokenUsage `json:"usage"`
}

// ProviderClient is the contract a backend integration implements.
// One client serves all models of one provider. Implementations must
// be safe for concurrent use, honor context cancellation, and report
// wire failures as (or wrapping) *sdk.APIError so the executor can
// classify them; the routing core is agnostic to authentication
// mechanics and wire formats.
type ProviderClient interface {
	// Provider returns the provider this client serves.
	Provider() Provider

	// Dispatch sends one request and returns the completion or an error.
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResponse, error)
}
