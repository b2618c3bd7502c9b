// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/cache"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/metrics"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/usage"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/orchestrator/routing/sdk"
	"github.com/klappe-pm/-lattice-lock-framework-sub006/shared/logger"
)

// Router is the façade over the routing core: it analyzes prompts,
// selects models, executes the fallback chain and runs consensus
// rounds. Construct with NewRouter; all dependencies beyond the
// catalog and clients are optional.
type Router struct {
	catalog   *CatalogHandle
	clients   map[Provider]ProviderClient
	analyzer  *Analyzer
	selector  *Selector
	tracker   *AvailabilityTracker
	resident  *ResidentManager
	executor  *FallbackExecutor
	consensus *ConsensusEngine
	limiter   *sdk.ProviderLimiter
	log       zerolog.Logger

	defaultPriority PriorityMode
}

type routerOptions struct {
	recorder        usage.Recorder
	collector       *metrics.Collector
	log             zerolog.Logger
	logSet          bool
	statusCache     cache.StatusCache
	availabilityTTL time.Duration
	residentBudget  int64
	analyzerCfg     AnalyzerConfig
	selectorCfg     SelectorConfig
	executorCfg     ExecutorConfig
	consensusCfg    ConsensusConfig
	defaultPriority PriorityMode
	configured      func(Provider) bool
	enabled         func(Provider) bool
	rateLimits      map[Provider]rateLimit
}

type rateLimit struct {
	rps   float64
	burst int
}

// Option configures a Router.
type Option func(*routerOptions)

// WithRecorder sets the usage sink every attempt is recorded to.
func WithRecorder(r usage.Recorder) Option {
	return func(o *routerOptions) { o.recorder = r }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *routerOptions) { o.collector = c }
}

// WithLogger sets the logger; the default writes JSON to stdout.
func WithLogger(log zerolog.Logger) Option {
	return func(o *routerOptions) { o.log = log; o.logSet = true }
}

// WithStatusCache sets the availability cache backend (in-memory by
// default; Redis for shared state across replicas).
func WithStatusCache(c cache.StatusCache) Option {
	return func(o *routerOptions) { o.statusCache = c }
}

// WithAvailabilityTTL sets the availability cache lifetime.
func WithAvailabilityTTL(ttl time.Duration) Option {
	return func(o *routerOptions) { o.availabilityTTL = ttl }
}

// WithResidentBudget sets the memory budget for local models; zero
// disables local models entirely.
func WithResidentBudget(bytes int64) Option {
	return func(o *routerOptions) { o.residentBudget = bytes }
}

// WithAnalyzerConfig overrides the analyzer thresholds.
func WithAnalyzerConfig(cfg AnalyzerConfig) Option {
	return func(o *routerOptions) { o.analyzerCfg = cfg }
}

// WithPreferences sets per-task preferred model orderings.
func WithPreferences(prefs map[TaskType][]ModelRef) Option {
	return func(o *routerOptions) { o.selectorCfg.Preferences = prefs }
}

// WithBlocklist removes models from consideration unconditionally.
func WithBlocklist(refs ...ModelRef) Option {
	return func(o *routerOptions) { o.selectorCfg.Blocklist = refs }
}

// WithAllowExperimental lifts the maturity gate for experimental models.
func WithAllowExperimental() Option {
	return func(o *routerOptions) { o.selectorCfg.Scorer.AllowExperimental = true }
}

// WithDefaultPriority sets the priority mode used when a request does
// not specify one.
func WithDefaultPriority(mode PriorityMode) Option {
	return func(o *routerOptions) { o.defaultPriority = mode }
}

// WithRetryPolicy sets the transient-failure retry policy.
func WithRetryPolicy(p sdk.RetryPolicy) Option {
	return func(o *routerOptions) { o.executorCfg.Retry = p }
}

// WithChainWidth bounds how many ranked candidates the fallback chain
// considers.
func WithChainWidth(n int) Option {
	return func(o *routerOptions) { o.executorCfg.ChainWidth = n }
}

// WithMaxAttempts sets the hard ceiling on dispatch attempts per
// logical request.
func WithMaxAttempts(n int) Option {
	return func(o *routerOptions) { o.executorCfg.MaxTotalAttempts = n }
}

// WithPerAttemptTimeout bounds each dispatch attempt.
func WithPerAttemptTimeout(d time.Duration) Option {
	return func(o *routerOptions) { o.executorCfg.PerAttemptTimeout = d }
}

// WithConsensusConfig sets the consensus round bounds.
func WithConsensusConfig(cfg ConsensusConfig) Option {
	return func(o *routerOptions) { o.consensusCfg = cfg }
}

// WithConfiguredProviders supplies the credential-presence check used
// by availability. The core never sees the credentials themselves.
func WithConfiguredProviders(fn func(Provider) bool) Option {
	return func(o *routerOptions) { o.configured = fn }
}

// WithEnabledProviders supplies the enablement check used by
// availability.
func WithEnabledProviders(fn func(Provider) bool) Option {
	return func(o *routerOptions) { o.enabled = fn }
}

// WithRateLimit sets a client-side requests-per-second ceiling for a
// provider.
func WithRateLimit(p Provider, rps float64, burst int) Option {
	return func(o *routerOptions) {
		if o.rateLimits == nil {
			o.rateLimits = make(map[Provider]rateLimit)
		}
		o.rateLimits[p] = rateLimit{rps: rps, burst: burst}
	}
}

// NewRouter assembles the routing core over an immutable catalog and a
// set of provider clients.
func NewRouter(catalog *Catalog, clients map[Provider]ProviderClient, opts ...Option) (*Router, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("router: catalog must not be empty")
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("router: at least one provider client is required")
	}

	o := routerOptions{
		analyzerCfg:     DefaultAnalyzerConfig(),
		executorCfg:     DefaultExecutorConfig(),
		consensusCfg:    DefaultConsensusConfig(),
		defaultPriority: PriorityBalanced,
	}
	o.selectorCfg.Scorer = DefaultScorerConfig()
	for _, opt := range opts {
		opt(&o)
	}
	if !o.logSet {
		o.log = logger.New("routing")
	}

	analyzer, err := NewAnalyzer(o.analyzerCfg)
	if err != nil {
		return nil, err
	}

	handle := NewCatalogHandle(catalog)
	tracker := NewAvailabilityTracker(o.statusCache, o.availabilityTTL, o.configured, o.enabled, o.log)

	var resident *ResidentManager
	var residency residencyFunc
	if o.residentBudget > 0 {
		resident = NewResidentManager(o.residentBudget, o.log, o.collector)
		residency = resident.Feasible
	} else if hasLocal(catalog) {
		// Local models without a budget are never selectable.
		residency = func(ModelProfile) bool { return false }
	}

	availability := func(p Provider) ProviderAvailability {
		return tracker.Check(context.Background(), p)
	}

	selector := NewSelector(handle, o.selectorCfg, availability, residency)

	var limiter *sdk.ProviderLimiter
	if len(o.rateLimits) > 0 {
		limiter = sdk.NewProviderLimiter()
		for p, l := range o.rateLimits {
			limiter.SetLimit(string(p), l.rps, l.burst)
		}
	}

	r := &Router{
		catalog:         handle,
		clients:         clients,
		analyzer:        analyzer,
		selector:        selector,
		tracker:         tracker,
		resident:        resident,
		limiter:         limiter,
		log:             o.log,
		defaultPriority: o.defaultPriority,
	}
	r.executor = newFallbackExecutor(o.executorCfg, clients, selector, tracker, resident,
		o.recorder, limiter, o.collector, o.log)
	r.consensus = newConsensusEngine(o.consensusCfg, clients, selector, o.collector, o.log)
	return r, nil
}

func hasLocal(c *Catalog) bool {
	for _, p := range c.All() {
		if p.Local {
			return true
		}
	}
	return false
}

// Analyze classifies a prompt into a task requirement without
// dispatching anything.
func (r *Router) Analyze(prompt string, hints *RequirementHints) TaskRequirement {
	req := r.analyzer.Analyze(prompt, hints)
	if req.Priority == "" {
		req.Priority = r.defaultPriority
	}
	return req
}

// Route analyzes the prompt, selects candidates and executes the
// fallback chain. Returns the result or a *ChainExhaustedError.
func (r *Router) Route(ctx context.Context, prompt string, hints *RequirementHints) (*ExecutionResult, error) {
	req := r.Analyze(prompt, hints)
	opts := ExecOptions{}
	if hints != nil {
		opts.SessionID = hints.SessionID
	}
	return r.executor.Execute(ctx, req, prompt, opts)
}

// RouteWithChain executes an explicit operator-configured fallback
// chain instead of ranked selection. Chain entries remain subject to
// disqualification and the blocklist.
func (r *Router) RouteWithChain(ctx context.Context, chain FallbackChain, prompt string, hints *RequirementHints) (*ExecutionResult, error) {
	req := r.Analyze(prompt, hints)
	if chain.Task != "" {
		req.Primary = chain.Task
	}
	opts := ExecOptions{Chain: &chain}
	if hints != nil {
		opts.SessionID = hints.SessionID
	}
	return r.executor.Execute(ctx, req, prompt, opts)
}

// Consensus fans the prompt out to a panel of models and tallies their
// answers.
func (r *Router) Consensus(ctx context.Context, prompt string, hints *RequirementHints) (*ConsensusResult, error) {
	req := r.Analyze(prompt, hints)
	return r.consensus.Run(ctx, req, prompt)
}

// Candidates returns the ranked selectable candidates for a prompt,
// best first, without dispatching.
func (r *Router) Candidates(prompt string, hints *RequirementHints, k int) []CandidateScore {
	return r.selector.Select(r.Analyze(prompt, hints), k)
}

// ListModels returns the current catalog contents.
func (r *Router) ListModels() []ModelProfile {
	return r.catalog.Load().All()
}

// ProviderStatus returns the availability of every provider in the
// current catalog.
func (r *Router) ProviderStatus(ctx context.Context) map[Provider]ProviderAvailability {
	return r.tracker.Snapshot(ctx, r.catalog.Load().Providers())
}

// ResidentModels returns the local-model occupancy snapshot, or nil
// when no resident budget is configured.
func (r *Router) ResidentModels() []ResidentModelSlot {
	if r.resident == nil {
		return nil
	}
	return r.resident.Resident()
}

// ReloadCatalog validates the profiles and swaps the catalog
// atomically. In-flight requests finish against the catalog they
// started with; a failed validation leaves the current catalog intact.
func (r *Router) ReloadCatalog(profiles []ModelProfile) error {
	cat, err := NewCatalog(profiles)
	if err != nil {
		return err
	}
	r.catalog.Swap(cat)
	r.log.Info().Int("models", cat.Len()).Msg("catalog reloaded")
	return nil
}

// InvalidateProvider drops the cached availability entry so the next
// check re-probes.
func (r *Router) InvalidateProvider(ctx context.Context, p Provider) {
	r.tracker.Invalidate(ctx, p)
}
