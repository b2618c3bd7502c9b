// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import "math"

// ScoreWeights are the per-term weights combined into a final score.
// Each term is in [0,1]; weights sum to 1.0 so scores stay in [0,1].
type ScoreWeights struct {
	Base       float64
	Primary    float64
	Secondary  float64
	Complexity float64
	Cost       float64
	Speed      float64
}

// weightsFor returns the weight profile for a priority mode. Balanced
// is the documented default: 0.50 base + 0.30 primary affinity +
// 0.10 secondary affinity + 0.10 complexity bonus.
func weightsFor(mode PriorityMode) ScoreWeights {
	switch mode {
	case PriorityQuality:
		return ScoreWeights{Base: 0.35, Primary: 0.40, Secondary: 0.10, Complexity: 0.15}
	case PrioritySpeed:
		return ScoreWeights{Base: 0.35, Primary: 0.20, Secondary: 0.05, Complexity: 0.0, Cost: 0.10, Speed: 0.30}
	case PriorityCost:
		return ScoreWeights{Base: 0.30, Primary: 0.20, Secondary: 0.05, Complexity: 0.05, Cost: 0.40}
	default: // balanced
		return ScoreWeights{Base: 0.50, Primary: 0.30, Secondary: 0.10, Complexity: 0.10}
	}
}

// ScorerConfig tunes scoring behavior.
type ScorerConfig struct {
	// AllowExperimental lifts the maturity gate for experimental
	// entries. Planned entries are never selectable.
	AllowExperimental bool

	// ComplexityThreshold is the requirement complexity above which
	// high-reasoning models earn the complexity bonus.
	ComplexityThreshold float64
}

// DefaultScorerConfig returns the default scoring configuration.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{ComplexityThreshold: 0.6}
}

// availabilityFunc reports provider availability at scoring time.
type availabilityFunc func(Provider) ProviderAvailability

// residencyFunc reports whether a local model could be made resident.
type residencyFunc func(ModelProfile) bool

// Scorer evaluates one profile against one requirement. Scoring is a
// deterministic pure function of its inputs plus the injected
// availability and residency views; it holds no time-based state.
type Scorer struct {
	cfg          ScorerConfig
	minCost      float64
	maxCost      float64
	availability availabilityFunc
	residency    residencyFunc
}

// NewScorer builds a scorer for a catalog's cost range. availability
// and residency may be nil, which skips the corresponding gates.
func NewScorer(cfg ScorerConfig, catalog *Catalog, availability availabilityFunc, residency residencyFunc) *Scorer {
	minCost, maxCost := catalog.CostRange()
	return &Scorer{
		cfg:          cfg,
		minCost:      minCost,
		maxCost:      maxCost,
		availability: availability,
		residency:    residency,
	}
}

// Score evaluates the profile under the requirement and priority mode.
// Disqualification rules run first, in fixed order: context window,
// vision, function calling, other required capabilities, maturity
// gate, provider availability, resident-memory feasibility.
func (s *Scorer) Score(p ModelProfile, req TaskRequirement, mode PriorityMode) CandidateScore {
	if p.ContextWindow < req.MinContextTokens {
		return disqualified(p, DisqualifyContextWindow)
	}
	if req.RequiresCapability(CapabilityVision) && !p.HasCapability(CapabilityVision) {
		return disqualified(p, DisqualifyVision)
	}
	if req.RequiresCapability(CapabilityFunctionCalling) && !p.HasCapability(CapabilityFunctionCalling) {
		return disqualified(p, DisqualifyFunctionCalling)
	}
	for _, c := range req.RequiredCapabilities {
		if c == CapabilityVision || c == CapabilityFunctionCalling {
			continue
		}
		if !p.HasCapability(c) {
			return disqualified(p, DisqualifyCapability)
		}
	}
	if p.Maturity == MaturityPlanned || (p.Maturity == MaturityExperimental && !s.cfg.AllowExperimental) {
		return disqualified(p, DisqualifyMaturity)
	}
	if s.availability != nil {
		if avail := s.availability(p.Ref.Provider); !avail.Available {
			return disqualified(p, DisqualifyUnavailable)
		}
	}
	if p.Local && s.residency != nil && !s.residency(p) {
		return disqualified(p, DisqualifyResourceBudget)
	}

	w := weightsFor(mode)

	primary := affinity(p, req.Primary)
	secondary := 0.0
	if len(req.Secondary) > 0 {
		for _, t := range req.Secondary {
			secondary += affinity(p, t)
		}
		secondary /= float64(len(req.Secondary))
	}

	bonus := 0.0
	if req.Complexity > s.cfg.ComplexityThreshold {
		bonus = float64(p.ReasoningScore) / 100
	}

	score := w.Base*0.5 +
		w.Primary*primary +
		w.Secondary*secondary +
		w.Complexity*bonus +
		w.Cost*s.costTerm(p) +
		w.Speed*speedTerm(p)

	return CandidateScore{Profile: p, Score: clamp01(score)}
}

// costTerm is the inverse blended cost (3:1 input:output weighting)
// normalized against the catalog's observed cost range: the cheapest
// model scores 1, the most expensive 0.
func (s *Scorer) costTerm(p ModelProfile) float64 {
	span := s.maxCost - s.minCost
	if span <= 0 {
		return 1.0
	}
	return clamp01(1 - (p.BlendedCost()-s.minCost)/span)
}

func speedTerm(p ModelProfile) float64 {
	return clamp01(float64(p.SpeedRating) / 10)
}

// affinity maps a profile's coding/reasoning subscores to a [0,1]
// fitness for one task type.
func affinity(p ModelProfile, task TaskType) float64 {
	coding := float64(p.CodingScore) / 100
	reasoning := float64(p.ReasoningScore) / 100

	switch task {
	case TaskCodeGeneration:
		return coding
	case TaskDebugging:
		return 0.9*coding + 0.1*reasoning
	case TaskTesting:
		return 0.8*coding + 0.2*reasoning
	case TaskSecurityAudit:
		return 0.6*coding + 0.4*reasoning
	case TaskArchitecture:
		return 0.3*coding + 0.7*reasoning
	case TaskDataAnalysis:
		return 0.4*coding + 0.6*reasoning
	case TaskDocumentation:
		return 0.5*coding + 0.5*reasoning
	case TaskReasoning:
		return reasoning
	case TaskCreativeWriting:
		return 0.2*coding + 0.8*reasoning
	case TaskTranslation:
		return 0.1*coding + 0.9*reasoning
	case TaskVision:
		if p.HasCapability(CapabilityVision) {
			return 1.0
		}
		return 0.0
	default: // general
		return (coding + reasoning) / 2
	}
}

func disqualified(p ModelProfile, reason DisqualifyReason) CandidateScore {
	return CandidateScore{Profile: p, Disqualified: true, Reason: reason}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
