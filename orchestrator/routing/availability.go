// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/cache"
)

// DefaultAvailabilityTTL is the cache lifetime for availability
// entries when none is configured.
const DefaultAvailabilityTTL = 5 * time.Minute

// AvailabilityTracker caches per-provider up/down status. Entries are
// revalidated lazily on access after TTL expiry; there is no
// background polling. Auth failures observed during dispatch are
// negative-cached immediately for fast failover.
type AvailabilityTracker struct {
	cache cache.StatusCache
	ttl   time.Duration
	log   zerolog.Logger

	// configured reports whether a credential exists for the provider.
	// Supplied by configuration; the core never sees raw secrets.
	configured func(Provider) bool

	// enabled reports whether the provider integration is switched on.
	enabled func(Provider) bool

	// mu serializes the check-compute-store path per tracker so two
	// concurrent misses do not race conflicting entries for one key.
	mu sync.Mutex
}

// NewAvailabilityTracker builds a tracker over a TTL cache. configured
// and enabled may be nil, in which case every provider passes that gate.
func NewAvailabilityTracker(c cache.StatusCache, ttl time.Duration, configured, enabled func(Provider) bool, log zerolog.Logger) *AvailabilityTracker {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	return &AvailabilityTracker{
		cache:      c,
		ttl:        ttl,
		configured: configured,
		enabled:    enabled,
		log:        log,
	}
}

const (
	statusAvailable   = "available"
	statusUnavailable = "unavailable"
)

// Check returns the provider's availability, computing and caching it
// on a miss.
func (t *AvailabilityTracker) Check(ctx context.Context, provider Provider) ProviderAvailability {
	key := string(provider)

	if entry, ok, err := t.cache.Get(ctx, key); err == nil && ok {
		return fromEntry(provider, entry)
	} else if err != nil {
		t.log.Warn().Err(err).Str("provider", key).Msg("availability cache read failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check under the lock; a concurrent caller may have filled it.
	if entry, ok, err := t.cache.Get(ctx, key); err == nil && ok {
		return fromEntry(provider, entry)
	}

	avail := t.probe(provider)
	t.store(ctx, avail)
	return avail
}

// probe computes availability from the configuration signals.
func (t *AvailabilityTracker) probe(provider Provider) ProviderAvailability {
	now := time.Now()
	avail := ProviderAvailability{
		Provider:  provider,
		CheckedAt: now,
		ExpiresAt: now.Add(t.ttl),
	}

	switch {
	case t.configured != nil && !t.configured(provider):
		avail.Reason = ReasonNotConfigured
	case t.enabled != nil && !t.enabled(provider):
		avail.Reason = ReasonNotEnabled
	default:
		avail.Available = true
	}
	return avail
}

// MarkUnreachable negative-caches the provider for the TTL window.
// Called on auth failures and network errors observed during dispatch.
func (t *AvailabilityTracker) MarkUnreachable(ctx context.Context, provider Provider, reason AvailabilityReason) {
	now := time.Now()
	avail := ProviderAvailability{
		Provider:  provider,
		Available: false,
		Reason:    reason,
		CheckedAt: now,
		ExpiresAt: now.Add(t.ttl),
	}

	t.mu.Lock()
	t.store(ctx, avail)
	t.mu.Unlock()

	t.log.Warn().
		Str("provider", string(provider)).
		Str("reason", string(reason)).
		Dur("ttl", t.ttl).
		Msg("provider marked unavailable")
}

// Invalidate drops the cached entry so the next Check re-probes.
func (t *AvailabilityTracker) Invalidate(ctx context.Context, provider Provider) {
	if err := t.cache.Delete(ctx, string(provider)); err != nil {
		t.log.Warn().Err(err).Str("provider", string(provider)).Msg("availability cache delete failed")
	}
}

func (t *AvailabilityTracker) store(ctx context.Context, avail ProviderAvailability) {
	value := statusAvailable
	if !avail.Available {
		value = statusUnavailable
	}
	entry := cache.Entry{
		Value:  value,
		Reason: string(avail.Reason),
	}
	if err := t.cache.Set(ctx, string(avail.Provider), entry, t.ttl); err != nil {
		t.log.Warn().Err(err).Str("provider", string(avail.Provider)).Msg("availability cache write failed")
	}
}

func fromEntry(provider Provider, entry cache.Entry) ProviderAvailability {
	return ProviderAvailability{
		Provider:  provider,
		Available: entry.Value == statusAvailable,
		Reason:    AvailabilityReason(entry.Reason),
		ExpiresAt: entry.ExpiresAt,
	}
}

// Snapshot returns the availability of each given provider, probing
// uncached ones.
func (t *AvailabilityTracker) Snapshot(ctx context.Context, providers []Provider) map[Provider]ProviderAvailability {
	out := make(map[Provider]ProviderAvailability, len(providers))
	for _, p := range providers {
		out[p] = t.Check(ctx, p)
	}
	return out
}
