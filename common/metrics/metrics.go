// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus collectors for the routing core:
// dispatch attempts and latency, consensus ballots, and resident-model
// memory occupancy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the routing core's Prometheus instruments.
type Collector struct {
	AttemptsTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	ConsensusBallots *prometheus.CounterVec
	ResidentBytes    prometheus.Gauge
	EvictionsTotal   prometheus.Counter
}

// NewCollector creates the instruments and registers them on reg.
// Pass prometheus.DefaultRegisterer for the process-global registry,
// or a fresh registry in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routing",
			Name:      "dispatch_attempts_total",
			Help:      "Dispatch attempts by provider, model and outcome.",
		}, []string{"provider", "model", "outcome"}),

		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "routing",
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch latency by provider.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),

		ConsensusBallots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routing",
			Name:      "consensus_ballots_total",
			Help:      "Consensus ballots by outcome (counted, failed, discarded).",
		}, []string{"outcome"}),

		ResidentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "routing",
			Name:      "resident_model_bytes",
			Help:      "Bytes of local model weights currently resident.",
		}),

		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "routing",
			Name:      "resident_model_evictions_total",
			Help:      "LRU evictions of resident local models.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.AttemptsTotal,
			c.DispatchDuration,
			c.ConsensusBallots,
			c.ResidentBytes,
			c.EvictionsTotal,
		)
	}
	return c
}
