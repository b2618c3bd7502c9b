// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

// Package routing implements the model-routing orchestrator core: task
// classification, capability-constrained scoring and selection over a
// catalog of heterogeneous model backends, sequential fallback
// execution with bounded retries, and multi-model consensus voting.
//
// The package is transport-agnostic. Provider backends are opaque
// ProviderClient implementations injected by the embedding
// application; the core never speaks provider wire protocols.
//
// Concurrency model: classification, scoring and selection are pure
// synchronous computation. Within one logical request the fallback
// executor dispatches strictly sequentially; the consensus engine is
// the only component that fans out concurrent calls for a single
// request, bounded by n. The catalog is immutable after load and
// swapped atomically on reload.
package routing
