// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import "sort"

// scoreEpsilon bounds float comparison when breaking score ties.
const scoreEpsilon = 1e-9

// SelectorConfig carries operator-configured selection policy.
type SelectorConfig struct {
	// Preferences maps task types to model references tried in listed
	// order before score-ranked candidates fill the remainder.
	Preferences map[TaskType][]ModelRef

	// Blocklist removes models from consideration unconditionally,
	// regardless of score. Never bypassed.
	Blocklist []ModelRef

	Scorer ScorerConfig
}

// Selector ranks catalog entries for a requirement using the scorer,
// availability view, operator preferences and blocklist.
type Selector struct {
	catalog      *CatalogHandle
	cfg          SelectorConfig
	blocked      map[ModelRef]struct{}
	availability availabilityFunc
	residency    residencyFunc
}

// NewSelector builds a selector over the shared catalog handle.
func NewSelector(catalog *CatalogHandle, cfg SelectorConfig, availability availabilityFunc, residency residencyFunc) *Selector {
	blocked := make(map[ModelRef]struct{}, len(cfg.Blocklist))
	for _, ref := range cfg.Blocklist {
		blocked[ref] = struct{}{}
	}
	return &Selector{
		catalog:      catalog,
		cfg:          cfg,
		blocked:      blocked,
		availability: availability,
		residency:    residency,
	}
}

// Select returns up to k selectable candidates for the requirement,
// best first. Every returned candidate passes all disqualification
// rules; disqualified entries are never returned.
func (s *Selector) Select(req TaskRequirement, k int) []CandidateScore {
	ranked, _ := s.Evaluate(req)
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Evaluate scores the whole catalog under the requirement, returning
// the ranked selectable candidates and the disqualified remainder.
func (s *Selector) Evaluate(req TaskRequirement) (ranked, rejected []CandidateScore) {
	cat := s.catalog.Load()
	scorer := NewScorer(s.cfg.Scorer, cat, s.availability, s.residency)

	mode := req.Priority
	if mode == "" {
		mode = PriorityBalanced
	}

	for _, p := range cat.All() {
		if _, blocked := s.blocked[p.Ref]; blocked {
			continue
		}
		cs := scorer.Score(p, req, mode)
		if cs.Disqualified {
			rejected = append(rejected, cs)
			continue
		}
		ranked = append(ranked, cs)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return lessCandidate(cat, ranked[i], ranked[j])
	})

	ranked = s.applyPreferences(req, ranked)
	return ranked, rejected
}

// lessCandidate orders candidates: score descending, then lower
// blended cost, then higher maturity tier, then stable catalog order.
func lessCandidate(cat *Catalog, a, b CandidateScore) bool {
	if diff := a.Score - b.Score; diff > scoreEpsilon || diff < -scoreEpsilon {
		return a.Score > b.Score
	}
	ac, bc := a.Profile.BlendedCost(), b.Profile.BlendedCost()
	if ac != bc {
		return ac < bc
	}
	ar, br := a.Profile.Maturity.rank(), b.Profile.Maturity.rank()
	if ar != br {
		return ar > br
	}
	return cat.loadOrder(a.Profile.Ref) < cat.loadOrder(b.Profile.Ref)
}

// applyPreferences reorders ranked candidates so an explicit model
// override comes first, then the operator preference list for the task
// type in listed order, then the score ranking fills the remainder.
// Preferences never resurrect blocklisted or disqualified models.
func (s *Selector) applyPreferences(req TaskRequirement, ranked []CandidateScore) []CandidateScore {
	var pinned []ModelRef
	if req.ModelOverride != nil {
		pinned = append(pinned, *req.ModelOverride)
	}
	pinned = append(pinned, s.cfg.Preferences[req.Primary]...)
	if len(pinned) == 0 {
		return ranked
	}

	byRef := make(map[ModelRef]int, len(ranked))
	for i, cs := range ranked {
		byRef[cs.Profile.Ref] = i
	}

	used := make(map[ModelRef]struct{}, len(pinned))
	out := make([]CandidateScore, 0, len(ranked))
	for _, ref := range pinned {
		if _, dup := used[ref]; dup {
			continue
		}
		used[ref] = struct{}{}
		if i, ok := byRef[ref]; ok {
			out = append(out, ranked[i])
		}
	}
	for _, cs := range ranked {
		if _, taken := used[cs.Profile.Ref]; taken {
			continue
		}
		out = append(out, cs)
	}
	return out
}

// Blocked reports whether a model is on the operator blocklist.
func (s *Selector) Blocked(ref ModelRef) bool {
	_, ok := s.blocked[ref]
	return ok
}
