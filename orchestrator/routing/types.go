// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies a backend model vendor (cloud API or locally
// hosted inference server).
type Provider string

// ModelRef uniquely identifies one model offered by one provider.
type ModelRef struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
}

// String returns the canonical "provider/model" form.
func (r ModelRef) String() string {
	return string(r.Provider) + "/" + r.Model
}

// ParseModelRef parses the canonical "provider/model" form.
func ParseModelRef(s string) (ModelRef, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ModelRef{}, fmt.Errorf("invalid model reference %q, expected \"provider/model\"", s)
	}
	return ModelRef{Provider: Provider(parts[0]), Model: parts[1]}, nil
}

// TaskType is the closed set of task categories a request can be
// classified into. Unknown values are rejected at load time, never
// silently ignored.
type TaskType string

// Task types, ordered roughly from most to least specific.
const (
	TaskVision          TaskType = "vision"
	TaskSecurityAudit   TaskType = "security_audit"
	TaskDebugging       TaskType = "debugging"
	TaskTesting         TaskType = "testing"
	TaskCodeGeneration  TaskType = "code_generation"
	TaskArchitecture    TaskType = "architecture"
	TaskDocumentation   TaskType = "documentation"
	TaskDataAnalysis    TaskType = "data_analysis"
	TaskTranslation     TaskType = "translation"
	TaskCreativeWriting TaskType = "creative_writing"
	TaskReasoning       TaskType = "reasoning"
	TaskGeneral         TaskType = "general"
)

// AllTaskTypes lists every valid task type.
var AllTaskTypes = []TaskType{
	TaskVision, TaskSecurityAudit, TaskDebugging, TaskTesting,
	TaskCodeGeneration, TaskArchitecture, TaskDocumentation,
	TaskDataAnalysis, TaskTranslation, TaskCreativeWriting,
	TaskReasoning, TaskGeneral,
}

// ParseTaskType validates a task type string.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range AllTaskTypes {
		if TaskType(s) == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// MaturityTier classifies how production-ready a model integration is.
type MaturityTier string

const (
	MaturityProduction   MaturityTier = "production"
	MaturityBeta         MaturityTier = "beta"
	MaturityExperimental MaturityTier = "experimental"
	MaturityPlanned      MaturityTier = "planned"
)

// ParseMaturityTier validates a maturity tier string.
func ParseMaturityTier(s string) (MaturityTier, error) {
	switch MaturityTier(s) {
	case MaturityProduction, MaturityBeta, MaturityExperimental, MaturityPlanned:
		return MaturityTier(s), nil
	}
	return "", fmt.Errorf("unknown maturity tier %q", s)
}

// rank orders tiers for tie-breaking; higher is more mature.
func (m MaturityTier) rank() int {
	switch m {
	case MaturityProduction:
		return 3
	case MaturityBeta:
		return 2
	case MaturityExperimental:
		return 1
	default:
		return 0
	}
}

// Capability is a feature flag a model may support.
type Capability string

const (
	CapabilityVision           Capability = "vision"
	CapabilityFunctionCalling  Capability = "function_calling"
	CapabilityStructuredOutput Capability = "structured_output"
)

// ParseCapability validates a capability string.
func ParseCapability(s string) (Capability, error) {
	switch Capability(s) {
	case CapabilityVision, CapabilityFunctionCalling, CapabilityStructuredOutput:
		return Capability(s), nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// PriorityMode selects the scoring weight profile.
type PriorityMode string

const (
	PriorityQuality  PriorityMode = "quality"
	PrioritySpeed    PriorityMode = "speed"
	PriorityCost     PriorityMode = "cost"
	PriorityBalanced PriorityMode = "balanced"
)

// ParsePriorityMode validates a priority mode string.
func ParsePriorityMode(s string) (PriorityMode, error) {
	switch PriorityMode(s) {
	case PriorityQuality, PrioritySpeed, PriorityCost, PriorityBalanced:
		return PriorityMode(s), nil
	}
	return "", fmt.Errorf("unknown priority mode %q", s)
}

// ModelProfile is the capability/cost/quality record for one model.
// Profiles are loaded once and read-only at runtime; a reload replaces
// the whole catalog atomically.
type ModelProfile struct {
	Ref ModelRef `json:"ref"`

	// ContextWindow is the maximum context size in tokens.
	ContextWindow int `json:"context_window"`

	// InputCostPerMTok and OutputCostPerMTok are USD per million tokens.
	InputCostPerMTok  float64 `json:"input_cost_per_mtok"`
	OutputCostPerMTok float64 `json:"output_cost_per_mtok"`

	// Capabilities lists supported feature flags.
	Capabilities []Capability `json:"capabilities,omitempty"`

	// CodingScore and ReasoningScore are task-affinity subscores (0-100).
	CodingScore    int `json:"coding_score"`
	ReasoningScore int `json:"reasoning_score"`

	// SpeedRating rates relative response speed (1-10).
	SpeedRating int `json:"speed_rating"`

	// Maturity gates experimental/planned entries from ordinary selection.
	Maturity MaturityTier `json:"maturity"`

	// Local marks self-hosted models subject to the resident memory budget.
	Local bool `json:"local,omitempty"`

	// LocalSizeBytes is the estimated resident size of a local model.
	LocalSizeBytes int64 `json:"local_size_bytes,omitempty"`
}

// HasCapability reports whether the profile supports the capability.
func (p ModelProfile) HasCapability(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// BlendedCost returns the 3:1 input:output weighted cost per million
// tokens, used for cost scoring and tie-breaking.
func (p ModelProfile) BlendedCost() float64 {
	return (3*p.InputCostPerMTok + p.OutputCostPerMTok) / 4
}

// AttemptCost derives the USD cost of an attempt from token usage and
// the profile's pricing.
func (p ModelProfile) AttemptCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.InputCostPerMTok/1e6 +
		float64(outputTokens)*p.OutputCostPerMTok/1e6
}

// TaskRequirement is derived per request and discarded afterwards.
type TaskRequirement struct {
	// Primary is the main task classification; Secondary lists further
	// matching categories in specificity order.
	Primary   TaskType   `json:"primary"`
	Secondary []TaskType `json:"secondary,omitempty"`

	// MinContextTokens is the estimated context the task needs,
	// including the expected response.
	MinContextTokens int `json:"min_context_tokens"`

	// RequiredCapabilities are hard constraints; models lacking any of
	// them are disqualified.
	RequiredCapabilities []Capability `json:"required_capabilities,omitempty"`

	// Complexity is a 0-1 heuristic of task difficulty.
	Complexity float64 `json:"complexity"`

	// ModelOverride pins an explicitly requested model. The override is
	// still subject to disqualification; fallback substitution is
	// disclosed on the result.
	ModelOverride *ModelRef `json:"model_override,omitempty"`

	// Priority selects the scoring weight profile; empty means the
	// router default.
	Priority PriorityMode `json:"priority,omitempty"`
}

// RequiresCapability reports whether the requirement demands c, either
// explicitly or via its primary task type (vision).
func (r TaskRequirement) RequiresCapability(c Capability) bool {
	if c == CapabilityVision && r.Primary == TaskVision {
		return true
	}
	for _, want := range r.RequiredCapabilities {
		if want == c {
			return true
		}
	}
	return false
}

// DisqualifyReason explains why a model failed a hard requirement.
// Distinct from low scoring: disqualified models are never selected.
type DisqualifyReason string

const (
	DisqualifyContextWindow   DisqualifyReason = "context_window"
	DisqualifyVision          DisqualifyReason = "vision_unsupported"
	DisqualifyFunctionCalling DisqualifyReason = "function_calling_unsupported"
	DisqualifyCapability      DisqualifyReason = "capability_unsupported"
	DisqualifyMaturity        DisqualifyReason = "maturity_gate"
	DisqualifyUnavailable     DisqualifyReason = "provider_unavailable"
	DisqualifyResourceBudget  DisqualifyReason = "resource_budget"
)

// CandidateScore is the scoring outcome for one model under one
// requirement. Scores are never cached across differing requirements.
type CandidateScore struct {
	Profile      ModelProfile     `json:"profile"`
	Score        float64          `json:"score"`
	Disqualified bool             `json:"disqualified"`
	Reason       DisqualifyReason `json:"reason,omitempty"`
}

// FallbackChain is an ordered, deduplicated list of models to try in
// turn for a task type.
type FallbackChain struct {
	Task   TaskType   `json:"task"`
	Models []ModelRef `json:"models"`
}

// NewFallbackChain builds a chain, dropping duplicate references while
// preserving order.
func NewFallbackChain(task TaskType, refs ...ModelRef) FallbackChain {
	seen := make(map[ModelRef]struct{}, len(refs))
	chain := FallbackChain{Task: task}
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		chain.Models = append(chain.Models, ref)
	}
	return chain
}

// TokenUsage is the token consumption reported for one dispatch.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ExecutionAttempt records one dispatch to one candidate.
type ExecutionAttempt struct {
	ID         string    `json:"id"`
	Ref        ModelRef  `json:"ref"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Kind is empty on success, otherwise the error classification.
	Kind ErrorKind `json:"error_kind,omitempty"`

	// Err is the error message on failure.
	Err string `json:"error,omitempty"`

	Usage   TokenUsage `json:"usage"`
	CostUSD float64    `json:"cost_usd"`
}

// Succeeded reports whether the attempt completed successfully.
func (a ExecutionAttempt) Succeeded() bool {
	return a.Kind == ""
}

// ExecutionResult aggregates the attempts of one logical request.
type ExecutionResult struct {
	RequestID string `json:"request_id"`

	// Content is the final response content.
	Content string `json:"content"`

	// Model is the winning candidate.
	Model ModelRef `json:"model"`

	// TotalCostUSD is the sum of all attempt costs, including failed
	// attempts that consumed tokens.
	TotalCostUSD float64 `json:"total_cost_usd"`

	// Attempts is the full ordered attempt history.
	Attempts []ExecutionAttempt `json:"attempts"`

	// Degraded is true when the winning model is not the
	// originally-preferred candidate; substitution is never silent.
	Degraded bool `json:"degraded,omitempty"`
}

// AttemptCount returns the number of dispatch attempts made.
func (r *ExecutionResult) AttemptCount() int {
	return len(r.Attempts)
}

// AvailabilityReason distinguishes why a provider is unavailable.
type AvailabilityReason string

const (
	// ReasonNotConfigured means the provider has no credential configured.
	ReasonNotConfigured AvailabilityReason = "not_configured"

	// ReasonNotEnabled means the provider is gated off (experimental or
	// planned integrations not explicitly enabled).
	ReasonNotEnabled AvailabilityReason = "not_enabled"

	// ReasonUnreachable means dispatch observed a network failure or an
	// auth rejection within the TTL window.
	ReasonUnreachable AvailabilityReason = "unreachable"
)

// ProviderAvailability is the cached up/down status of one provider.
type ProviderAvailability struct {
	Provider  Provider           `json:"provider"`
	Available bool               `json:"available"`
	Reason    AvailabilityReason `json:"reason,omitempty"`
	CheckedAt time.Time          `json:"checked_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// ConsensusBallot is one model's answer in a consensus round.
type ConsensusBallot struct {
	Ref     ModelRef `json:"ref"`
	Content string   `json:"content,omitempty"`

	// VoteKey is the normalized, comparable form of Content.
	VoteKey string `json:"vote_key,omitempty"`

	// Err is set when this model's call failed; failed ballots are not
	// tallied.
	Err string `json:"error,omitempty"`

	CostUSD float64 `json:"cost_usd"`
}

// Counted reports whether the ballot participates in the tally.
func (b ConsensusBallot) Counted() bool {
	return b.Err == ""
}

// ConsensusResult is the aggregate outcome of a consensus round.
type ConsensusResult struct {
	RequestID string `json:"request_id"`

	// WinnerKey is the plurality vote key; Content is a representative
	// answer from the winning group.
	WinnerKey string `json:"winner_key"`
	Content   string `json:"content"`

	// Votes maps vote keys to counts across counted ballots.
	Votes map[string]int `json:"votes"`

	// Ballots is the per-model breakdown, including failures.
	Ballots []ConsensusBallot `json:"ballots"`

	// Confidence is winning votes over total counted votes.
	Confidence float64 `json:"confidence"`

	// LowConfidence flags rounds with fewer than two counted ballots.
	LowConfidence bool `json:"low_confidence,omitempty"`

	TotalCostUSD float64 `json:"total_cost_usd"`
}

// ResidentModelSlot is a snapshot of one locally-resident model.
type ResidentModelSlot struct {
	Ref       ModelRef  `json:"ref"`
	SizeBytes int64     `json:"size_bytes"`
	LastUsed  time.Time `json:"last_used"`
	InFlight  int       `json:"in_flight"`
}
