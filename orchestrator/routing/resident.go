// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/metrics"
)

// ResidentManager tracks which local models are loaded against a fixed
// memory budget. Dispatch to a non-resident local model loads it,
// evicting least-recently-used idle models until it fits. Slots are
// never evicted mid-request. Models that cannot fit even after full
// eviction are reported infeasible so the selector disqualifies them
// up front instead of surfacing a runtime fault.
type ResidentManager struct {
	budget  int64
	used    int64
	slots   map[ModelRef]*residentSlot
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Collector

	mu sync.Mutex
}

type residentSlot struct {
	size     int64
	lastUsed time.Time
	inFlight int
}

// NewResidentManager creates a manager with the given byte budget.
// collector may be nil.
func NewResidentManager(budgetBytes int64, log zerolog.Logger, collector *metrics.Collector) *ResidentManager {
	m := &ResidentManager{
		budget:  budgetBytes,
		slots:   make(map[ModelRef]*residentSlot),
		now:     time.Now,
		log:     log,
		metrics: collector,
	}
	return m
}

// Feasible reports whether the model could ever be made resident: its
// estimated size must fit the whole budget. Used as the selection-time
// disqualification hook.
func (m *ResidentManager) Feasible(p ModelProfile) bool {
	if !p.Local {
		return true
	}
	return p.LocalSizeBytes <= m.budget
}

// Acquire makes the model resident and pins it for the duration of one
// request. The caller must Release exactly once. Returns
// ErrModelTooLarge when the model exceeds the whole budget (checked
// before any eviction runs) and ErrBudgetExhausted when every resident
// model is mid-request and nothing can be evicted.
func (m *ResidentManager) Acquire(ref ModelRef, sizeBytes int64) error {
	if sizeBytes > m.budget {
		return ErrModelTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if slot, resident := m.slots[ref]; resident {
		slot.inFlight++
		slot.lastUsed = m.now()
		return nil
	}

	for m.used+sizeBytes > m.budget {
		victim := m.lruIdle()
		if victim == (ModelRef{}) {
			return ErrBudgetExhausted
		}
		m.evict(victim)
	}

	m.slots[ref] = &residentSlot{size: sizeBytes, lastUsed: m.now(), inFlight: 1}
	m.used += sizeBytes
	m.gauge()
	m.log.Info().Str("model", ref.String()).Int64("size_bytes", sizeBytes).Msg("local model loaded")
	return nil
}

// Release unpins the model after a request completes.
func (m *ResidentManager) Release(ref ModelRef) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[ref]
	if !ok || slot.inFlight == 0 {
		return
	}
	slot.inFlight--
	slot.lastUsed = m.now()
}

// lruIdle returns the least-recently-used slot with no in-flight
// requests, or the zero ref when none is evictable. Callers hold the lock.
func (m *ResidentManager) lruIdle() ModelRef {
	var victim ModelRef
	var oldest time.Time
	for ref, slot := range m.slots {
		if slot.inFlight > 0 {
			continue
		}
		if victim == (ModelRef{}) || slot.lastUsed.Before(oldest) {
			victim = ref
			oldest = slot.lastUsed
		}
	}
	return victim
}

// evict removes a slot. Callers hold the lock.
func (m *ResidentManager) evict(ref ModelRef) {
	slot := m.slots[ref]
	delete(m.slots, ref)
	m.used -= slot.size
	m.gauge()
	if m.metrics != nil {
		m.metrics.EvictionsTotal.Inc()
	}
	m.log.Info().Str("model", ref.String()).Int64("size_bytes", slot.size).Msg("local model evicted")
}

func (m *ResidentManager) gauge() {
	if m.metrics != nil {
		m.metrics.ResidentBytes.Set(float64(m.used))
	}
}

// UsedBytes returns the current resident total.
func (m *ResidentManager) UsedBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// BudgetBytes returns the configured budget.
func (m *ResidentManager) BudgetBytes() int64 {
	return m.budget
}

// Resident returns a snapshot of the occupancy table, most recently
// used first.
func (m *ResidentManager) Resident() []ResidentModelSlot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ResidentModelSlot, 0, len(m.slots))
	for ref, slot := range m.slots {
		out = append(out, ResidentModelSlot{
			Ref:       ref,
			SizeBytes: slot.size,
			LastUsed:  slot.lastUsed,
			InFlight:  slot.inFlight,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out
}
