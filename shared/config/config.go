// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

// Package config loads the routing configuration file: the model
// catalog, selection policy and provider settings. The file carries
// credential *locations* (environment variable names), never the
// credentials themselves. Loads are all-or-nothing: any invalid entry
// rejects the whole file and the previous configuration stays active.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/orchestrator/routing"
)

// File is the root of the YAML configuration.
type File struct {
	Models    []Model             `yaml:"models"`
	Routing   Routing             `yaml:"routing"`
	Providers map[string]Provider `yaml:"providers"`
}

// Model is one catalog entry.
type Model struct {
	Provider          string   `yaml:"provider"`
	Model             string   `yaml:"model"`
	ContextWindow     int      `yaml:"context_window"`
	InputCostPerMTok  float64  `yaml:"input_cost_per_mtok"`
	OutputCostPerMTok float64  `yaml:"output_cost_per_mtok"`
	Capabilities      []string `yaml:"capabilities,omitempty"`
	CodingScore       int      `yaml:"coding_score"`
	ReasoningScore    int      `yaml:"reasoning_score"`
	SpeedRating       int      `yaml:"speed_rating"`
	Maturity          string   `yaml:"maturity"`
	Local             bool     `yaml:"local,omitempty"`
	LocalSizeBytes    int64    `yaml:"local_size_bytes,omitempty"`
}

// Routing holds the selection and execution policy.
type Routing struct {
	// DefaultPriority is the scoring mode used when a request does not
	// specify one (quality/speed/cost/balanced).
	DefaultPriority string `yaml:"default_priority,omitempty"`

	AllowExperimental bool `yaml:"allow_experimental,omitempty"`

	// ChainWidth and MaxAttempts bound the fallback chain.
	ChainWidth  int `yaml:"chain_width,omitempty"`
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// PerAttemptTimeout and AvailabilityTTL are Go duration strings.
	PerAttemptTimeout string `yaml:"per_attempt_timeout,omitempty"`
	AvailabilityTTL   string `yaml:"availability_ttl,omitempty"`

	// ResidentBudgetBytes is the memory budget for local models; zero
	// disables local models.
	ResidentBudgetBytes int64 `yaml:"resident_budget_bytes,omitempty"`

	// Preferences maps task types to "provider/model" references tried
	// in listed order.
	Preferences map[string][]string `yaml:"preferences,omitempty"`

	// Blocklist removes "provider/model" references unconditionally.
	Blocklist []string `yaml:"blocklist,omitempty"`

	Analyzer *Analyzer `yaml:"analyzer,omitempty"`

	Consensus *Consensus `yaml:"consensus,omitempty"`
}

// Analyzer overrides the prompt-analysis thresholds.
type Analyzer struct {
	CharsPerToken      float64 `yaml:"chars_per_token,omitempty"`
	ResponseMultiplier float64 `yaml:"response_multiplier,omitempty"`
	MinContextFloor    int     `yaml:"min_context_floor,omitempty"`
	ModerateWords      int     `yaml:"moderate_words,omitempty"`
	ComplexWords       int     `yaml:"complex_words,omitempty"`
	MaxSecondary       int     `yaml:"max_secondary,omitempty"`
}

// Consensus bounds consensus rounds.
type Consensus struct {
	Panelists         int    `yaml:"panelists,omitempty"`
	Quorum            int    `yaml:"quorum,omitempty"`
	Deadline          string `yaml:"deadline,omitempty"`
	PerAttemptTimeout string `yaml:"per_attempt_timeout,omitempty"`
}

// Provider holds per-provider settings. APIKeyEnv names the
// environment variable carrying the credential; the loader only checks
// presence.
type Provider struct {
	Enabled   bool    `yaml:"enabled"`
	APIKeyEnv string  `yaml:"api_key_env,omitempty"`
	RPS       float64 `yaml:"rps,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`
}

// Load reads and validates the configuration file. Unknown fields are
// rejected so typos fail loudly instead of silently defaulting.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw YAML configuration bytes.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if len(f.Models) == 0 {
		return fmt.Errorf("config: at least one model is required")
	}
	for _, m := range f.Models {
		if m.Provider == "" || m.Model == "" {
			return fmt.Errorf("config: model entry missing provider or model name")
		}
	}

	if f.Routing.DefaultPriority != "" {
		if _, err := routing.ParsePriorityMode(f.Routing.DefaultPriority); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for task := range f.Routing.Preferences {
		if _, err := routing.ParseTaskType(task); err != nil {
			return fmt.Errorf("config: preferences: %w", err)
		}
	}
	for _, ref := range f.Routing.Blocklist {
		if _, err := routing.ParseModelRef(ref); err != nil {
			return fmt.Errorf("config: blocklist: %w", err)
		}
	}
	for _, field := range []struct{ name, value string }{
		{"per_attempt_timeout", f.Routing.PerAttemptTimeout},
		{"availability_ttl", f.Routing.AvailabilityTTL},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	if c := f.Routing.Consensus; c != nil {
		for _, field := range []struct{ name, value string }{
			{"consensus.deadline", c.Deadline},
			{"consensus.per_attempt_timeout", c.PerAttemptTimeout},
		} {
			if field.value == "" {
				continue
			}
			if _, err := time.ParseDuration(field.value); err != nil {
				return fmt.Errorf("config: %s: %w", field.name, err)
			}
		}
	}
	return nil
}

// Catalog converts the model entries into a validated routing catalog.
// Catalog-level validation (duplicate keys, score ranges, maturity
// tiers) happens in routing.NewCatalog.
func (f *File) Catalog() (*routing.Catalog, error) {
	profiles := make([]routing.ModelProfile, 0, len(f.Models))
	for _, m := range f.Models {
		caps := make([]routing.Capability, 0, len(m.Capabilities))
		for _, c := range m.Capabilities {
			caps = append(caps, routing.Capability(c))
		}
		profiles = append(profiles, routing.ModelProfile{
			Ref:               routing.ModelRef{Provider: routing.Provider(m.Provider), Model: m.Model},
			ContextWindow:     m.ContextWindow,
			InputCostPerMTok:  m.InputCostPerMTok,
			OutputCostPerMTok: m.OutputCostPerMTok,
			Capabilities:      caps,
			CodingScore:       m.CodingScore,
			ReasoningScore:    m.ReasoningScore,
			SpeedRating:       m.SpeedRating,
			Maturity:          routing.MaturityTier(m.Maturity),
			Local:             m.Local,
			LocalSizeBytes:    m.LocalSizeBytes,
		})
	}
	return routing.NewCatalog(profiles)
}

// RouterOptions converts the policy sections into router options.
func (f *File) RouterOptions() ([]routing.Option, error) {
	var opts []routing.Option

	rt := f.Routing
	if rt.DefaultPriority != "" {
		mode, err := routing.ParsePriorityMode(rt.DefaultPriority)
		if err != nil {
			return nil, err
		}
		opts = append(opts, routing.WithDefaultPriority(mode))
	}
	if rt.AllowExperimental {
		opts = append(opts, routing.WithAllowExperimental())
	}
	if rt.ChainWidth > 0 {
		opts = append(opts, routing.WithChainWidth(rt.ChainWidth))
	}
	if rt.MaxAttempts > 0 {
		opts = append(opts, routing.WithMaxAttempts(rt.MaxAttempts))
	}
	if rt.PerAttemptTimeout != "" {
		d, err := time.ParseDuration(rt.PerAttemptTimeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, routing.WithPerAttemptTimeout(d))
	}
	if rt.AvailabilityTTL != "" {
		d, err := time.ParseDuration(rt.AvailabilityTTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, routing.WithAvailabilityTTL(d))
	}
	if rt.ResidentBudgetBytes > 0 {
		opts = append(opts, routing.WithResidentBudget(rt.ResidentBudgetBytes))
	}

	if len(rt.Preferences) > 0 {
		prefs := make(map[routing.TaskType][]routing.ModelRef, len(rt.Preferences))
		for task, refs := range rt.Preferences {
			t, err := routing.ParseTaskType(task)
			if err != nil {
				return nil, err
			}
			for _, s := range refs {
				ref, err := routing.ParseModelRef(s)
				if err != nil {
					return nil, err
				}
				prefs[t] = append(prefs[t], ref)
			}
		}
		opts = append(opts, routing.WithPreferences(prefs))
	}
	if len(rt.Blocklist) > 0 {
		refs := make([]routing.ModelRef, 0, len(rt.Blocklist))
		for _, s := range rt.Blocklist {
			ref, err := routing.ParseModelRef(s)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
		opts = append(opts, routing.WithBlocklist(refs...))
	}

	if a := rt.Analyzer; a != nil {
		cfg := routing.DefaultAnalyzerConfig()
		if a.CharsPerToken > 0 {
			cfg.CharsPerToken = a.CharsPerToken
		}
		if a.ResponseMultiplier > 0 {
			cfg.ResponseMultiplier = a.ResponseMultiplier
		}
		if a.MinContextFloor > 0 {
			cfg.MinContextFloor = a.MinContextFloor
		}
		if a.ModerateWords > 0 {
			cfg.ModerateWords = a.ModerateWords
		}
		if a.ComplexWords > 0 {
			cfg.ComplexWords = a.ComplexWords
		}
		if a.MaxSecondary > 0 {
			cfg.MaxSecondary = a.MaxSecondary
		}
		opts = append(opts, routing.WithAnalyzerConfig(cfg))
	}

	if c := rt.Consensus; c != nil {
		cfg := routing.DefaultConsensusConfig()
		if c.Panelists > 0 {
			cfg.Panelists = c.Panelists
		}
		if c.Quorum > 0 {
			cfg.Quorum = c.Quorum
		}
		if c.Deadline != "" {
			d, err := time.ParseDuration(c.Deadline)
			if err != nil {
				return nil, err
			}
			cfg.Deadline = d
		}
		if c.PerAttemptTimeout != "" {
			d, err := time.ParseDuration(c.PerAttemptTimeout)
			if err != nil {
				return nil, err
			}
			cfg.PerAttemptTimeout = d
		}
		opts = append(opts, routing.WithConsensusConfig(cfg))
	}

	opts = append(opts,
		routing.WithConfiguredProviders(f.providerConfigured),
		routing.WithEnabledProviders(f.providerEnabled),
	)
	for name, p := range f.Providers {
		if p.RPS > 0 {
			opts = append(opts, routing.WithRateLimit(routing.Provider(name), p.RPS, p.Burst))
		}
	}
	return opts, nil
}

// providerConfigured reports whether the provider's credential exists.
// Providers without a settings entry or without an APIKeyEnv (local
// inference servers) count as configured.
func (f *File) providerConfigured(p routing.Provider) bool {
	settings, ok := f.Providers[string(p)]
	if !ok || settings.APIKeyEnv == "" {
		return true
	}
	return os.Getenv(settings.APIKeyEnv) != ""
}

// providerEnabled reports whether the provider is switched on.
// Providers without a settings entry default to enabled.
func (f *File) providerEnabled(p routing.Provider) bool {
	settings, ok := f.Providers[string(p)]
	if !ok {
		return true
	}
	return settings.Enabled
}
