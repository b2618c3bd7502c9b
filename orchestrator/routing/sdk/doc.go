// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

// Package sdk provides shared building blocks for provider client
// integrations: an explicit retry policy with exponential backoff, a
// wire-level error type that carries retryability, and per-provider
// client-side rate limiting.
//
// The routing core never talks to provider APIs directly; client
// implementations wrap their transport errors in *sdk.APIError so the
// fallback executor can classify failures without knowing provider
// wire formats.
package sdk
