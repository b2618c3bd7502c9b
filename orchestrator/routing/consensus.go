// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/klappe-pm/-lattice-lock-framework-sub006/common/metrics"
)

// ConsensusConfig bounds a consensus round.
type ConsensusConfig struct {
	// Panelists is the number of models queried in parallel.
	Panelists int

	// Quorum is the number of counted ballots that settles the round;
	// once met, still-pending panelists are cancelled. Zero means a
	// majority of the panel.
	Quorum int

	// Deadline bounds the whole round. When it fires, whatever ballots
	// have arrived are tallied.
	Deadline time.Duration

	// PerAttemptTimeout bounds each panelist's call.
	PerAttemptTimeout time.Duration
}

// DefaultConsensusConfig returns the default round bounds.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		Panelists:         3,
		Deadline:          2 * time.Minute,
		PerAttemptTimeout: 60 * time.Second,
	}
}

func (c ConsensusConfig) quorum() int {
	if c.Quorum > 0 {
		return c.Quorum
	}
	return c.Panelists/2 + 1
}

// ConsensusEngine fans one prompt out to several models in parallel
// and tallies their normalized answers. Used for high-stakes calls
// where a single model's answer is not trusted.
type ConsensusEngine struct {
	cfg      ConsensusConfig
	clients  map[Provider]ProviderClient
	selector *Selector
	metrics  *metrics.Collector
	log      zerolog.Logger
}

func newConsensusEngine(cfg ConsensusConfig, clients map[Provider]ProviderClient, selector *Selector, collector *metrics.Collector, log zerolog.Logger) *ConsensusEngine {
	if cfg.Panelists <= 0 {
		cfg.Panelists = DefaultConsensusConfig().Panelists
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultConsensusConfig().Deadline
	}
	if cfg.PerAttemptTimeout <= 0 {
		cfg.PerAttemptTimeout = DefaultConsensusConfig().PerAttemptTimeout
	}
	return &ConsensusEngine{
		cfg:      cfg,
		clients:  clients,
		selector: selector,
		metrics:  collector,
		log:      log,
	}
}

// Run executes one consensus round. Panelists are the top-ranked
// candidates diversified across providers where possible; their calls
// run concurrently and failed calls simply lose their vote. The round
// settles once quorum ballots are counted or the deadline fires;
// still-pending panelists are cancelled, not awaited.
func (e *ConsensusEngine) Run(ctx context.Context, req TaskRequirement, prompt string) (*ConsensusResult, error) {
	requestID := uuid.NewString()
	log := e.log.With().Str("request_id", requestID).Logger()

	panel := e.pickPanel(req)
	if len(panel) == 0 {
		_, rejected := e.selector.Evaluate(req)
		return nil, &ChainExhaustedError{
			RequestID:    requestID,
			Task:         req.Primary,
			Disqualified: rejected,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Deadline)
	defer cancel()

	// Buffered so panelists finishing after cancellation never block on
	// send; their results are simply discarded.
	results := make(chan ConsensusBallot, len(panel))
	for _, p := range panel {
		go e.ask(ctx, p, prompt, results)
	}

	ballots := make([]ConsensusBallot, 0, len(panel))
	counted := 0
collect:
	for range panel {
		select {
		case b := <-results:
			ballots = append(ballots, b)
			e.observeBallot(b)
			if b.Counted() {
				counted++
			}
			// Quorum settles the round; stop waiting on stragglers.
			if counted >= e.cfg.quorum() {
				cancel()
				break collect
			}
		case <-ctx.Done():
			break collect
		}
	}
	if discarded := len(panel) - len(ballots); discarded > 0 && e.metrics != nil {
		e.metrics.ConsensusBallots.WithLabelValues("discarded").Add(float64(discarded))
	}

	result := e.tally(requestID, ballots)
	if counted < e.cfg.quorum() {
		log.Warn().Int("counted", counted).Int("quorum", e.cfg.quorum()).Msg("consensus quorum not met")
		result.LowConfidence = true
	}
	log.Info().Int("ballots", len(ballots)).Str("winner", result.WinnerKey).
		Float64("confidence", result.Confidence).Msg("consensus round complete")
	return result, nil
}

// pickPanel selects the top-ranked candidates, preferring provider
// diversity: a second model from an already-picked provider is taken
// only when no unpicked provider remains.
func (e *ConsensusEngine) pickPanel(req TaskRequirement) []ModelProfile {
	ranked, _ := e.selector.Evaluate(req)

	var panel []ModelProfile
	seen := make(map[Provider]struct{})
	taken := make(map[ModelRef]struct{})

	for _, cs := range ranked {
		if len(panel) == e.cfg.Panelists {
			return panel
		}
		if _, dup := seen[cs.Profile.Ref.Provider]; dup {
			continue
		}
		if _, ok := e.clients[cs.Profile.Ref.Provider]; !ok {
			continue
		}
		seen[cs.Profile.Ref.Provider] = struct{}{}
		taken[cs.Profile.Ref] = struct{}{}
		panel = append(panel, cs.Profile)
	}

	// Fill the remainder from duplicate providers in rank order.
	for _, cs := range ranked {
		if len(panel) == e.cfg.Panelists {
			break
		}
		if _, dup := taken[cs.Profile.Ref]; dup {
			continue
		}
		if _, ok := e.clients[cs.Profile.Ref.Provider]; !ok {
			continue
		}
		taken[cs.Profile.Ref] = struct{}{}
		panel = append(panel, cs.Profile)
	}
	return panel
}

// ask dispatches one panelist and sends its ballot. Always sends
// exactly one ballot; the channel is buffered for the full panel.
func (e *ConsensusEngine) ask(ctx context.Context, p ModelProfile, prompt string, results chan<- ConsensusBallot) {
	ballot := ConsensusBallot{Ref: p.Ref}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.PerAttemptTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.clients[p.Ref.Provider].Dispatch(callCtx, DispatchRequest{
		Prompt: prompt,
		Model:  p.Ref.Model,
	})
	if err != nil {
		ballot.Err = err.Error()
		e.observeDispatch(p, start)
		results <- ballot
		return
	}

	ballot.Content = resp.Content
	ballot.VoteKey = normalizeVoteKey(resp.Content)
	ballot.CostUSD = p.AttemptCost(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	e.observeDispatch(p, start)
	results <- ballot
}

func (e *ConsensusEngine) observeDispatch(p ModelProfile, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.DispatchDuration.WithLabelValues(string(p.Ref.Provider)).
		Observe(time.Since(start).Seconds())
}

// observeBallot records the outcome of a ballot the round actually
// collected; stragglers are accounted as discarded by the caller.
func (e *ConsensusEngine) observeBallot(b ConsensusBallot) {
	if e.metrics == nil {
		return
	}
	outcome := "failed"
	if b.Counted() {
		outcome = "counted"
	}
	e.metrics.ConsensusBallots.WithLabelValues(outcome).Inc()
}

// tally groups counted ballots by vote key and picks the plurality
// winner; ties break lexicographically on the key so repeated rounds
// over the same ballots agree.
func (e *ConsensusEngine) tally(requestID string, ballots []ConsensusBallot) *ConsensusResult {
	result := &ConsensusResult{
		RequestID: requestID,
		Votes:     make(map[string]int),
		Ballots:   ballots,
	}

	counted := 0
	for _, b := range ballots {
		result.TotalCostUSD += b.CostUSD
		if !b.Counted() {
			continue
		}
		counted++
		result.Votes[b.VoteKey]++
	}
	if counted == 0 {
		result.LowConfidence = true
		return result
	}

	keys := make([]string, 0, len(result.Votes))
	for k := range result.Votes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if result.Votes[k] > result.Votes[result.WinnerKey] {
			result.WinnerKey = k
		}
	}
	for _, b := range ballots {
		if b.Counted() && b.VoteKey == result.WinnerKey {
			result.Content = b.Content
			break
		}
	}
	result.Confidence = float64(result.Votes[result.WinnerKey]) / float64(counted)
	if counted < 2 {
		result.LowConfidence = true
	}
	return result
}

// normalizeVoteKey canonicalizes an answer for comparison: lowercase,
// whitespace collapsed, trailing punctuation and surrounding quotes
// stripped. Answers differing only in those respects vote together.
func normalizeVoteKey(content string) string {
	s := strings.ToLower(strings.TrimSpace(content))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".!?,;:")
	return strings.TrimSpace(s)
}
