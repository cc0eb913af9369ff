package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/halcyon-ai/agentgraph/graph/advise"
)

// RouterConfig exposes the routing heuristics as tunable parameters.
// The magnitudes are conventions, not laws; tests and hosts that need
// different exploration behavior adjust them here.
type RouterConfig struct {
	// HistoryWeight is the share of the final score taken from the
	// edge's own score; the remainder comes from historical success
	// rate. Default 0.7.
	HistoryWeight float64

	// DefaultHistoryRate substitutes for the success rate of an edge
	// with no recorded history. Default 0.5.
	DefaultHistoryRate float64

	// ProbabilisticJitter is the maximum multiplicative jitter fraction
	// applied to probabilistic edges, drawn uniformly from
	// [-jitter, +jitter]. Default 0.2.
	ProbabilisticJitter float64

	// ExclusiveBoost is the multiplicative bonus granted to a sole
	// exclusive candidate. Default 0.2.
	ExclusiveBoost float64

	// ContenderThreshold is the score at or above which a non-winning
	// candidate counts as a close contender, prompting a backtrack
	// point. Default 0.3.
	ContenderThreshold float64

	// AdvisorMultiplier is the bounded bonus applied to the advisor's
	// recommended candidate. Clamped to [1.0, 1.5]. Default 1.2.
	AdvisorMultiplier float64

	// AdvisorTimeout bounds the AI-assisted routing call. It should be
	// shorter than node timeouts; on expiry the router falls back to its
	// own scores. Default 5s.
	AdvisorTimeout time.Duration

	// Seed seeds the jitter RNG. Zero selects a time-based seed; set it
	// for reproducible probabilistic routing in tests.
	Seed int64
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.HistoryWeight == 0 {
		c.HistoryWeight = 0.7
	}
	if c.DefaultHistoryRate == 0 {
		c.DefaultHistoryRate = 0.5
	}
	if c.ProbabilisticJitter == 0 {
		c.ProbabilisticJitter = 0.2
	}
	if c.ExclusiveBoost == 0 {
		c.ExclusiveBoost = 0.2
	}
	if c.ContenderThreshold == 0 {
		c.ContenderThreshold = 0.3
	}
	if c.AdvisorMultiplier == 0 {
		c.AdvisorMultiplier = 1.2
	}
	if c.AdvisorMultiplier < 1.0 {
		c.AdvisorMultiplier = 1.0
	}
	if c.AdvisorMultiplier > 1.5 {
		c.AdvisorMultiplier = 1.5
	}
	if c.AdvisorTimeout == 0 {
		c.AdvisorTimeout = 5 * time.Second
	}
	return c
}

// Decision is the router's selection for one step.
type Decision struct {
	// From is the node routed away from.
	From string

	// Next is the winning competitive target, empty when only parallel
	// edges qualified.
	Next string

	// Confidence is the winner's final score in [0,1].
	Confidence float64

	// Explanation describes how the winner was chosen.
	Explanation string

	// Parallel lists the targets of qualifying parallel edges, in
	// registration order. Each becomes a concurrent branch.
	Parallel []string

	// Scores maps every positive competitive candidate to its final
	// score.
	Scores map[string]float64

	// RequiresBacktrackPoint is set when more than one non-winning
	// candidate scored at or above the close-contender threshold.
	RequiresBacktrackPoint bool

	// Alternatives holds the non-winning contender scores, the map a
	// BacktrackPoint is persisted with.
	Alternatives map[string]float64

	// AdvisorApplied names the candidate boosted by the AI-assisted
	// recommendation, empty when advice was absent or discarded.
	AdvisorApplied string
}

// Router scores candidate edges and selects the next node(s) for an
// execution. One Router serves all concurrent executions of an engine;
// its only mutable pieces (jitter RNG, history) are internally locked.
type Router struct {
	cfg      RouterConfig
	history  *RoutingHistory
	advisor  advise.Advisor
	fallback func(reason string)

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRouter creates a router. history may not be nil; advisor may be nil,
// disabling AI-assisted routing.
func NewRouter(cfg RouterConfig, history *RoutingHistory, advisor advise.Advisor) *Router {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Router{
		cfg:     cfg,
		history: history,
		advisor: advisor,
		rng:     rand.New(rand.NewSource(seed)), // #nosec G404 -- exploration jitter, not security
	}
}

// Config returns the effective configuration after defaulting.
func (r *Router) Config() RouterConfig { return r.cfg }

// OnAdvisorFallback registers a callback invoked whenever an advisor
// consultation fails and routing falls back to heuristic scores. reason
// is "error" or "timeout". The engine wires this to its metrics.
func (r *Router) OnAdvisorFallback(fn func(reason string)) {
	r.fallback = fn
}

type scoredEdge struct {
	edge  Edge
	score float64
	notes []string
}

// Decide selects the next node(s) from the candidate edges.
//
// Scoring pipeline:
//  1. Parallel edges are evaluated independently; each with a positive
//     base score becomes a branch, not a competitor.
//  2. Competitive edges score priority x satisfied-weight fraction (or
//     bare priority), gated by the edge condition.
//  3. Scores blend with historical success rate.
//  4. Strategy adjustment: probabilistic jitter, exclusive boost.
//  5. If any candidate is AI-tagged and an advisor is configured, its
//     recommendation multiplies one candidate's score, bounded; advisor
//     failure falls back to the adjusted scores.
//  6. Highest score wins; registration order breaks ties.
//  7. Close contenders flag the decision for a backtrack point.
//
// With no winner and no qualifying parallel edge, the error wraps
// ErrNoValidRoute.
func (r *Router) Decide(ctx context.Context, from string, edges []Edge, state *State) (Decision, error) {
	dec := Decision{
		From:         from,
		Scores:       make(map[string]float64),
		Alternatives: make(map[string]float64),
	}

	var candidates []scoredEdge
	exclusiveCount := 0
	aiTagged := false

	for _, e := range edges {
		base := baseScore(e, state)
		if e.Strategy == StrategyParallel {
			if base > 0 {
				dec.Parallel = append(dec.Parallel, e.To)
			}
			continue
		}
		if base <= 0 {
			continue
		}
		if e.Strategy == StrategyExclusive {
			exclusiveCount++
		}
		if e.Strategy == StrategyAI {
			aiTagged = true
		}

		rate, ok := r.history.SuccessRate(from, e.To)
		if !ok {
			rate = r.cfg.DefaultHistoryRate
		}
		final := clamp01(r.cfg.HistoryWeight*base + (1-r.cfg.HistoryWeight)*rate)
		notes := []string{fmt.Sprintf("base %.2f", base), fmt.Sprintf("history %.2f", rate)}
		candidates = append(candidates, scoredEdge{edge: e, score: final, notes: notes})
	}

	// Strategy adjustment.
	for i := range candidates {
		c := &candidates[i]
		switch c.edge.Strategy {
		case StrategyProbabilistic:
			jitter := r.jitter()
			c.score = clamp01(c.score * (1 + jitter))
			c.notes = append(c.notes, fmt.Sprintf("jitter %+.2f", jitter))
		case StrategyExclusive:
			if exclusiveCount == 1 {
				c.score = clamp01(c.score * (1 + r.cfg.ExclusiveBoost))
				c.notes = append(c.notes, fmt.Sprintf("exclusive +%.0f%%", r.cfg.ExclusiveBoost*100))
			}
		}
	}

	// AI-assisted nudge: a bounded multiplier on one candidate, never a
	// hard override. Any advisor failure keeps the adjusted scores.
	if aiTagged && r.advisor != nil && len(candidates) > 0 {
		if target, ok := r.consultAdvisor(ctx, from, state, candidates); ok {
			for i := range candidates {
				if candidates[i].edge.To == target {
					candidates[i].score = clamp01(candidates[i].score * r.cfg.AdvisorMultiplier)
					candidates[i].notes = append(candidates[i].notes, fmt.Sprintf("advisor x%.1f", r.cfg.AdvisorMultiplier))
					dec.AdvisorApplied = target
					break
				}
			}
		}
	}

	if len(candidates) == 0 && len(dec.Parallel) == 0 {
		return Decision{}, fmt.Errorf("%w from node %s", ErrNoValidRoute, from)
	}

	for _, c := range candidates {
		dec.Scores[c.edge.To] = c.score
	}

	if len(candidates) > 0 {
		// Registration order is preserved in the slice; strict greater-than
		// makes the earliest-registered edge win ties.
		winner := 0
		for i := 1; i < len(candidates); i++ {
			if candidates[i].score > candidates[winner].score {
				winner = i
			}
		}
		w := candidates[winner]
		dec.Next = w.edge.To
		dec.Confidence = w.score
		dec.Explanation = fmt.Sprintf("edge %s->%s: %s, final %.2f (%s)",
			from, w.edge.To, strings.Join(w.notes, ", "), w.score, w.edge.Strategy)

		contenders := 0
		for i, c := range candidates {
			if i == winner {
				continue
			}
			if c.score >= r.cfg.ContenderThreshold {
				contenders++
				dec.Alternatives[c.edge.To] = c.score
			}
		}
		dec.RequiresBacktrackPoint = contenders > 1
	}
	return dec, nil
}

// consultAdvisor runs the recommendation call under its own timeout and
// validates the response. The boolean is false whenever the advice should
// be discarded.
func (r *Router) consultAdvisor(ctx context.Context, from string, state *State, candidates []scoredEdge) (string, bool) {
	reqCandidates := make([]advise.Candidate, len(candidates))
	for i, c := range candidates {
		cond := ""
		if v, ok := c.edge.Metadata["condition"]; ok {
			cond = fmt.Sprint(v)
		}
		reqCandidates[i] = advise.Candidate{
			Target:    c.edge.To,
			Score:     c.score,
			Condition: cond,
			Metadata:  c.edge.Metadata,
		}
	}

	actx, cancel := context.WithTimeout(ctx, r.cfg.AdvisorTimeout)
	defer cancel()

	rec, err := r.advisor.Recommend(actx, advise.Request{
		Node:         from,
		StateSummary: summarizeState(state),
		Candidates:   reqCandidates,
	})
	if err != nil {
		if r.fallback != nil {
			reason := "error"
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "timeout"
			}
			r.fallback(reason)
		}
		return "", false
	}
	return rec.Target, true
}

// baseScore computes the pre-history score of an edge against a state:
// priority scaled by the satisfied fraction of weighted sub-conditions,
// gated by the main condition. Always in [0,1].
func baseScore(e Edge, state *State) float64 {
	if e.Condition != nil && !e.Condition(state) {
		return 0
	}
	priority := e.Priority
	if priority <= 0 {
		priority = 1.0
	}
	if len(e.Weights) == 0 {
		return clamp01(priority)
	}
	total := 0.0
	satisfied := 0.0
	for _, wc := range e.Weights {
		total += wc.Weight
		if wc.Check == nil || wc.Check(state) {
			satisfied += wc.Weight
		}
	}
	if total == 0 {
		return clamp01(priority)
	}
	return clamp01(priority * (satisfied / total))
}

// jitter draws a uniform value from [-ProbabilisticJitter, +ProbabilisticJitter].
func (r *Router) jitter() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (r.rng.Float64()*2 - 1) * r.cfg.ProbabilisticJitter
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// summarizeState renders a compact textual summary of the state for the
// advisor: visited path tail plus sorted data keys with abbreviated
// values. Full state is never shipped to the recommendation capability.
func summarizeState(state *State) string {
	if state == nil {
		return "(no state)"
	}
	keys := make([]string, 0, len(state.Data))
	for k := range state.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	tail := state.Path
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	fmt.Fprintf(&b, "version=%d path=%s data={", state.Version, strings.Join(tail, ">"))
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		val := "?"
		if raw, err := json.Marshal(state.Data[k]); err == nil {
			val = string(raw)
			if len(val) > 64 {
				val = val[:61] + "..."
			}
		}
		fmt.Fprintf(&b, "%s=%s", k, val)
	}
	b.WriteString("}")
	return b.String()
}
