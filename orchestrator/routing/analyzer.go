// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"fmt"
	"math"
	"strings"
)

// AnalyzerConfig tunes the classification heuristics. The thresholds
// are configuration, not contracts; DefaultAnalyzerConfig documents
// the defaults.
type AnalyzerConfig struct {
	// CharsPerToken is the prompt-length-to-token estimate divisor.
	CharsPerToken float64

	// ResponseMultiplier scales estimated prompt tokens to account for
	// the expected response when deriving MinContextTokens.
	ResponseMultiplier float64

	// MinContextFloor is the lower bound on MinContextTokens.
	MinContextFloor int

	// ModerateWords and ComplexWords are word-count thresholds for the
	// complexity heuristic.
	ModerateWords int
	ComplexWords  int

	// MaxSecondary caps the number of secondary task types.
	MaxSecondary int
}

// DefaultAnalyzerConfig returns the default thresholds.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		CharsPerToken:      4.0,
		ResponseMultiplier: 1.5,
		MinContextFloor:    4096,
		ModerateWords:      25,
		ComplexWords:       80,
		MaxSecondary:       3,
	}
}

func (c AnalyzerConfig) validate() error {
	if c.CharsPerToken <= 0 {
		return fmt.Errorf("analyzer: chars per token must be positive")
	}
	if c.ResponseMultiplier < 0 {
		return fmt.Errorf("analyzer: response multiplier must be non-negative")
	}
	if c.ModerateWords <= 0 || c.ComplexWords <= c.ModerateWords {
		return fmt.Errorf("analyzer: word thresholds must satisfy 0 < moderate < complex")
	}
	return nil
}

// classificationRule maps keywords to a task type. Rules are evaluated
// in order; the first match wins the primary classification, so the
// table is ordered most-specific first.
type classificationRule struct {
	task     TaskType
	keywords []string
}

// defaultRules is the built-in classification table. Validated against
// the closed TaskType set when the analyzer is constructed.
var defaultRules = []classificationRule{
	{TaskVision, []string{"image", "screenshot", "photo", "this picture", "diagram in"}},
	{TaskSecurityAudit, []string{"vulnerability", "security audit", "exploit", "cve-", "injection", "pentest", "insecure"}},
	{TaskDebugging, []string{"bug", "debug", "stack trace", "traceback", "crash", "fix this error", "not working", "broken"}},
	{TaskTesting, []string{"unit test", "test case", "test coverage", "integration test", "write tests"}},
	{TaskCodeGeneration, []string{"implement", "write a function", "write code", "generate code", "refactor", "create a class", "add a method"}},
	{TaskArchitecture, []string{"architecture", "design pattern", "trade-off", "tradeoff", "should i use", "scalab", "system design"}},
	{TaskDocumentation, []string{"document", "readme", "docstring", "changelog", "api reference"}},
	{TaskDataAnalysis, []string{"analyze the data", "dataset", "csv", "statistics", "correlation", "aggregate the"}},
	{TaskTranslation, []string{"translate", "translation"}},
	{TaskCreativeWriting, []string{"story", "poem", "creative", "screenplay", "lyrics"}},
	{TaskReasoning, []string{"prove", "step by step", "reason about", "logic puzzle", "deduce", "why does"}},
}

// Analyzer derives task requirements from prompts. It is a pure
// function of its inputs: no network calls, no clock, O(prompt length).
type Analyzer struct {
	cfg   AnalyzerConfig
	rules []classificationRule
}

// RequirementHints carries caller-supplied overrides for Analyze.
type RequirementHints struct {
	// TaskType forces the primary classification.
	TaskType *TaskType

	// RequiredCapabilities adds hard capability constraints.
	RequiredCapabilities []Capability

	// MinContextTokens overrides the estimated context need when larger.
	MinContextTokens int

	// ModelOverride pins an explicitly requested model.
	ModelOverride *ModelRef

	// Priority overrides the router's default priority mode.
	Priority PriorityMode

	// SessionID labels usage records for this request.
	SessionID string
}

// NewAnalyzer builds an analyzer, validating the configuration and the
// classification table against the closed task-type set.
func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	for _, rule := range defaultRules {
		if _, err := ParseTaskType(string(rule.task)); err != nil {
			return nil, fmt.Errorf("analyzer: classification table: %w", err)
		}
		if len(rule.keywords) == 0 {
			return nil, fmt.Errorf("analyzer: classification table: task %s has no keywords", rule.task)
		}
	}
	return &Analyzer{cfg: cfg, rules: defaultRules}, nil
}

// Analyze classifies a prompt into a TaskRequirement. Identical inputs
// always yield identical requirements.
func (a *Analyzer) Analyze(prompt string, hints *RequirementHints) TaskRequirement {
	lower := strings.ToLower(prompt)

	var matched []TaskType
	for _, rule := range a.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, rule.task)
				break
			}
		}
	}

	primary := TaskGeneral
	var secondary []TaskType
	if len(matched) > 0 {
		// Ties break toward the most specific category: the table is
		// specificity-ordered and the first match wins.
		primary = matched[0]
		for _, t := range matched[1:] {
			if len(secondary) >= a.cfg.MaxSecondary {
				break
			}
			secondary = append(secondary, t)
		}
	}

	req := TaskRequirement{
		Primary:          primary,
		Secondary:        secondary,
		Complexity:       a.complexity(prompt, lower),
		MinContextTokens: a.minContext(prompt),
	}

	if hints != nil {
		if hints.TaskType != nil {
			req.Primary = *hints.TaskType
		}
		req.RequiredCapabilities = append(req.RequiredCapabilities, hints.RequiredCapabilities...)
		if hints.MinContextTokens > req.MinContextTokens {
			req.MinContextTokens = hints.MinContextTokens
		}
		req.ModelOverride = hints.ModelOverride
		req.Priority = hints.Priority
	}
	if req.Primary == TaskVision && !hasCapability(req.RequiredCapabilities, CapabilityVision) {
		req.RequiredCapabilities = append(req.RequiredCapabilities, CapabilityVision)
	}

	return req
}

// complexity scores prompt difficulty in [0,1] from length, structure
// and reasoning markers.
func (a *Analyzer) complexity(prompt, lower string) float64 {
	wc := len(strings.Fields(prompt))

	var c float64
	switch {
	case wc >= a.cfg.ComplexWords:
		c = 0.65
	case wc >= a.cfg.ModerateWords:
		c = 0.35
	default:
		c = 0.15
	}

	if strings.Contains(prompt, "```") {
		c += 0.15
	}
	for _, kw := range []string{"explain", "compare", "analyze", "evaluate", "prove", "trade-off", "step by step"} {
		if strings.Contains(lower, kw) {
			c += 0.15
			break
		}
	}
	// Multi-part prompts (several questions) trend harder.
	if strings.Count(prompt, "?") >= 2 {
		c += 0.1
	}

	return math.Min(c, 1.0)
}

// minContext estimates the context the task needs: prompt tokens plus
// the expected-response multiplier, floored.
func (a *Analyzer) minContext(prompt string) int {
	promptTokens := int(math.Ceil(float64(len(prompt)) / a.cfg.CharsPerToken))
	need := int(math.Ceil(float64(promptTokens) * (1 + a.cfg.ResponseMultiplier)))
	if need < a.cfg.MinContextFloor {
		need = a.cfg.MinContextFloor
	}
	return need
}

func hasCapability(caps []Capability, c Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}
