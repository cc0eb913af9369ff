package graph

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/halcyon-ai/agentgraph/graph/advise"
)

func newTestRouter(cfg RouterConfig, advisor advise.Advisor) (*Router, *RoutingHistory) {
	h := NewRoutingHistory()
	return NewRouter(cfg, h, advisor), h
}

func edge(from, to string, opts ...EdgeOption) Edge {
	e := Edge{From: from, To: to, Priority: 1.0, Strategy: StrategySimple}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func TestRouter_Decide(t *testing.T) {
	ctx := context.Background()

	t.Run("single unconditional edge wins", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		dec, err := r.Decide(ctx, "a", []Edge{edge("a", "b")}, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if dec.Next != "b" {
			t.Errorf("expected next b, got %q", dec.Next)
		}
		// 0.7*1.0 + 0.3*0.5 with no history.
		if math.Abs(dec.Confidence-0.85) > 1e-9 {
			t.Errorf("expected confidence 0.85, got %f", dec.Confidence)
		}
	})

	t.Run("unsatisfied condition removes edge", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		never := func(s *State) bool { return false }
		_, err := r.Decide(ctx, "a", []Edge{edge("a", "b", func(e *Edge) { e.Condition = never })}, NewState("x", nil))
		if !errors.Is(err, ErrNoValidRoute) {
			t.Errorf("expected ErrNoValidRoute, got %v", err)
		}
	})

	t.Run("no edges is no valid route", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		_, err := r.Decide(ctx, "a", nil, NewState("x", nil))
		if !errors.Is(err, ErrNoValidRoute) {
			t.Errorf("expected ErrNoValidRoute, got %v", err)
		}
	})

	t.Run("weighted edge scores by satisfied fraction", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		st := NewState("x", map[string]any{"has_data": true})
		hasData := func(s *State) bool { v, _ := s.Get("has_data"); return v == true }
		hasPlan := func(s *State) bool { v, _ := s.Get("has_plan"); return v == true }

		edges := []Edge{
			edge("a", "summarize", WithWeights(
				WeightedCondition{Weight: 3, Check: hasData},
				WeightedCondition{Weight: 1, Check: hasPlan},
			)),
		}
		dec, err := r.Decide(ctx, "a", edges, st)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		// base = 1.0 * (3/4) = 0.75; blended = 0.7*0.75 + 0.3*0.5 = 0.675.
		if math.Abs(dec.Scores["summarize"]-0.675) > 1e-9 {
			t.Errorf("expected score 0.675, got %f", dec.Scores["summarize"])
		}
	})

	t.Run("higher weighted satisfaction beats lower", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		st := NewState("x", map[string]any{"quality": float64(0.9)})
		goodQuality := func(s *State) bool {
			v, _ := s.Get("quality")
			f, _ := v.(float64)
			return f > 0.8
		}
		edges := []Edge{
			edge("review", "revise", WithWeights(WeightedCondition{Weight: 1, Check: func(s *State) bool { return !goodQuality(s) }})),
			edge("review", "publish", WithWeights(WeightedCondition{Weight: 1, Check: goodQuality})),
		}
		dec, err := r.Decide(ctx, "review", edges, st)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if dec.Next != "publish" {
			t.Errorf("expected publish to win, got %q", dec.Next)
		}
		if dec.Confidence < 0.5 {
			t.Errorf("expected winner confidence >= 0.5, got %f", dec.Confidence)
		}
	})

	t.Run("registration order breaks ties", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		edges := []Edge{edge("a", "first"), edge("a", "second")}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if dec.Next != "first" {
			t.Errorf("expected earliest-registered edge to win ties, got %q", dec.Next)
		}
	})

	t.Run("scores stay in unit interval", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{Seed: 99}, nil)
		edges := []Edge{
			edge("a", "b", WithPriority(1.0), WithStrategy(StrategyProbabilistic)),
			edge("a", "c", WithPriority(1.0), WithStrategy(StrategyExclusive)),
		}
		for i := 0; i < 50; i++ {
			dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			for to, score := range dec.Scores {
				if score < 0 || score > 1 {
					t.Fatalf("score for %s out of range: %f", to, score)
				}
			}
		}
	})

	t.Run("deterministic without probabilistic edges", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		edges := []Edge{edge("a", "b", WithPriority(0.9)), edge("a", "c", WithPriority(0.6))}
		first, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		for i := 0; i < 10; i++ {
			dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if dec.Next != first.Next || dec.Confidence != first.Confidence {
				t.Fatalf("routing drifted on identical input: %+v vs %+v", dec, first)
			}
		}
	})
}

func TestRouter_Strategies(t *testing.T) {
	ctx := context.Background()

	t.Run("probabilistic jitter is bounded", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{Seed: 7}, nil)
		// Unjittered blended score for a 0.5-priority edge: 0.7*0.5+0.3*0.5 = 0.5.
		edges := []Edge{edge("a", "b", WithPriority(0.5), WithStrategy(StrategyProbabilistic))}
		for i := 0; i < 100; i++ {
			dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if dec.Confidence < 0.5*0.8-1e-9 || dec.Confidence > 0.5*1.2+1e-9 {
				t.Fatalf("jitter exceeded 20%% band: %f", dec.Confidence)
			}
		}
	})

	t.Run("sole exclusive edge gets boost", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		edges := []Edge{
			edge("a", "safe", WithPriority(0.5), WithStrategy(StrategyExclusive)),
			edge("a", "other", WithPriority(0.5)),
		}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		// Both blend to 0.5; exclusive boost lifts safe to 0.6.
		if math.Abs(dec.Scores["safe"]-0.6) > 1e-9 {
			t.Errorf("expected boosted score 0.6, got %f", dec.Scores["safe"])
		}
		if dec.Next != "safe" {
			t.Errorf("expected boosted edge to win, got %q", dec.Next)
		}
	})

	t.Run("two exclusive edges get no boost", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		edges := []Edge{
			edge("a", "b", WithPriority(0.5), WithStrategy(StrategyExclusive)),
			edge("a", "c", WithPriority(0.5), WithStrategy(StrategyExclusive)),
		}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if math.Abs(dec.Scores["b"]-0.5) > 1e-9 || math.Abs(dec.Scores["c"]-0.5) > 1e-9 {
			t.Errorf("expected no boost with competing exclusives, got %v", dec.Scores)
		}
	})

	t.Run("parallel edges become branches not competitors", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		edges := []Edge{
			edge("fork", "web", WithStrategy(StrategyParallel)),
			edge("fork", "db", WithStrategy(StrategyParallel)),
			edge("fork", "skip", WithStrategy(StrategyParallel), func(e *Edge) {
				e.Condition = func(s *State) bool { return false }
			}),
		}
		dec, err := r.Decide(ctx, "fork", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if dec.Next != "" {
			t.Errorf("expected no competitive winner, got %q", dec.Next)
		}
		if len(dec.Parallel) != 2 || dec.Parallel[0] != "web" || dec.Parallel[1] != "db" {
			t.Errorf("expected branches [web db], got %v", dec.Parallel)
		}
	})
}

func TestRouter_HistoryBlending(t *testing.T) {
	ctx := context.Background()

	t.Run("history shifts the score", func(t *testing.T) {
		r, h := newTestRouter(RouterConfig{}, nil)
		for i := 0; i < 10; i++ {
			h.RecordOutcome("a", "b", true, 0.8)
			h.RecordOutcome("a", "c", false, 0.8)
		}
		edges := []Edge{edge("a", "c"), edge("a", "b")}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if dec.Next != "b" {
			t.Errorf("expected historically successful edge to win, got %q", dec.Next)
		}
		// b: 0.7*1.0 + 0.3*1.0 = 1.0; c: 0.7*1.0 + 0.3*0.0 = 0.7.
		if math.Abs(dec.Scores["b"]-1.0) > 1e-9 || math.Abs(dec.Scores["c"]-0.7) > 1e-9 {
			t.Errorf("unexpected blended scores: %v", dec.Scores)
		}
	})

	t.Run("unseen edge uses default rate", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		dec, err := r.Decide(ctx, "a", []Edge{edge("a", "b", WithPriority(0.4))}, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		// 0.7*0.4 + 0.3*0.5 = 0.43.
		if math.Abs(dec.Confidence-0.43) > 1e-9 {
			t.Errorf("expected 0.43 with default history rate, got %f", dec.Confidence)
		}
	})
}

func TestRouter_Contenders(t *testing.T) {
	ctx := context.Background()

	t.Run("two close contenders flag a backtrack point", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		edges := []Edge{
			edge("a", "win", WithPriority(1.0)),
			edge("a", "alt1", WithPriority(0.8)),
			edge("a", "alt2", WithPriority(0.7)),
		}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if !dec.RequiresBacktrackPoint {
			t.Error("expected a backtrack point with two close contenders")
		}
		if len(dec.Alternatives) != 2 {
			t.Errorf("expected 2 alternatives, got %v", dec.Alternatives)
		}
	})

	t.Run("one contender is not enough", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		edges := []Edge{
			edge("a", "win", WithPriority(1.0)),
			edge("a", "alt", WithPriority(0.8)),
		}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if dec.RequiresBacktrackPoint {
			t.Error("a single contender should not create a backtrack point")
		}
	})

	t.Run("weak alternatives are ignored", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{}, nil)
		weak := func(s *State) bool { return true }
		edges := []Edge{
			edge("a", "win", WithPriority(1.0)),
			edge("a", "alt1", WithPriority(0.05), func(e *Edge) { e.Condition = weak }),
			edge("a", "alt2", WithPriority(0.05)),
		}
		// 0.7*0.05 + 0.3*0.5 = 0.185, below the 0.3 threshold.
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if dec.RequiresBacktrackPoint {
			t.Errorf("weak alternatives should not flag a backtrack point: %v", dec.Alternatives)
		}
	})
}

func TestRouter_Advisor(t *testing.T) {
	ctx := context.Background()

	t.Run("recommendation nudges the score", func(t *testing.T) {
		mock := &advise.MockAdvisor{Rec: advise.Recommendation{Target: "underdog", Confidence: 0.9}}
		r, _ := newTestRouter(RouterConfig{}, mock)
		edges := []Edge{
			edge("a", "favorite", WithPriority(0.8), WithStrategy(StrategyAI)),
			edge("a", "underdog", WithPriority(0.7), WithStrategy(StrategyAI)),
		}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		// favorite: 0.7*0.8+0.3*0.5 = 0.71; underdog: 0.7*0.7+0.3*0.5 = 0.64,
		// nudged x1.2 = 0.768, enough to overtake.
		if dec.Next != "underdog" {
			t.Errorf("expected nudged candidate to win, got %q", dec.Next)
		}
		if dec.AdvisorApplied != "underdog" {
			t.Errorf("expected AdvisorApplied=underdog, got %q", dec.AdvisorApplied)
		}
		if len(mock.Requests()) != 1 {
			t.Errorf("expected one advisor call, got %d", len(mock.Requests()))
		}
	})

	t.Run("nudge is bounded, not an override", func(t *testing.T) {
		mock := &advise.MockAdvisor{Rec: advise.Recommendation{Target: "weak"}}
		r, _ := newTestRouter(RouterConfig{}, mock)
		edges := []Edge{
			edge("a", "strong", WithPriority(1.0), WithStrategy(StrategyAI)),
			edge("a", "weak", WithPriority(0.3), WithStrategy(StrategyAI)),
		}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		// weak: (0.7*0.3+0.3*0.5)*1.2 = 0.432, still below strong's 0.85.
		if dec.Next != "strong" {
			t.Errorf("a x1.2 nudge must not override a clear winner, got %q", dec.Next)
		}
	})

	t.Run("advisor error falls back to own scores", func(t *testing.T) {
		mock := &advise.MockAdvisor{Err: errors.New("model unavailable")}
		r, _ := newTestRouter(RouterConfig{}, mock)
		edges := []Edge{
			edge("a", "b", WithPriority(0.9), WithStrategy(StrategyAI)),
			edge("a", "c", WithPriority(0.6), WithStrategy(StrategyAI)),
		}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("expected graceful fallback, got %v", err)
		}
		if dec.Next != "b" || dec.AdvisorApplied != "" {
			t.Errorf("expected own-score winner b without advice, got %+v", dec)
		}
	})

	t.Run("advisor timeout falls back", func(t *testing.T) {
		mock := &advise.MockAdvisor{
			Rec: advise.Recommendation{Target: "c"},
			Delay: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}
		r, _ := newTestRouter(RouterConfig{AdvisorTimeout: 10 * time.Millisecond}, mock)
		edges := []Edge{
			edge("a", "b", WithPriority(0.9), WithStrategy(StrategyAI)),
			edge("a", "c", WithPriority(0.6), WithStrategy(StrategyAI)),
		}
		start := time.Now()
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("expected graceful fallback, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("advisor timeout was not honored, took %v", elapsed)
		}
		if dec.Next != "b" || dec.AdvisorApplied != "" {
			t.Errorf("expected fallback winner b, got %+v", dec)
		}
	})

	t.Run("recommendation for unknown target is discarded", func(t *testing.T) {
		mock := &advise.MockAdvisor{Rec: advise.Recommendation{Target: "ghost"}}
		r, _ := newTestRouter(RouterConfig{}, mock)
		edges := []Edge{edge("a", "b", WithStrategy(StrategyAI))}
		dec, err := r.Decide(ctx, "a", edges, NewState("x", nil))
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if dec.AdvisorApplied != "" {
			t.Errorf("expected no advisor application, got %q", dec.AdvisorApplied)
		}
	})

	t.Run("no AI-tagged edge skips the advisor", func(t *testing.T) {
		mock := &advise.MockAdvisor{Rec: advise.Recommendation{Target: "b"}}
		r, _ := newTestRouter(RouterConfig{}, mock)
		if _, err := r.Decide(ctx, "a", []Edge{edge("a", "b")}, NewState("x", nil)); err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if len(mock.Requests()) != 0 {
			t.Errorf("advisor consulted without an AI-tagged edge: %d calls", len(mock.Requests()))
		}
	})
}

func TestRouter_AdvisorFallbackRecorder(t *testing.T) {
	ctx := context.Background()
	aiEdges := []Edge{
		edge("a", "b", WithPriority(0.9), WithStrategy(StrategyAI)),
		edge("a", "c", WithPriority(0.6), WithStrategy(StrategyAI)),
	}

	t.Run("advisor error is recorded", func(t *testing.T) {
		mock := &advise.MockAdvisor{Err: errors.New("advisor down")}
		r, _ := newTestRouter(RouterConfig{}, mock)
		var reasons []string
		r.OnAdvisorFallback(func(reason string) { reasons = append(reasons, reason) })

		if _, err := r.Decide(ctx, "a", aiEdges, NewState("x", nil)); err != nil {
			t.Fatalf("expected graceful fallback, got %v", err)
		}
		if len(reasons) != 1 || reasons[0] != "error" {
			t.Errorf("expected one error fallback, got %v", reasons)
		}
	})

	t.Run("advisor timeout is recorded", func(t *testing.T) {
		mock := &advise.MockAdvisor{
			Delay: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}
		r, _ := newTestRouter(RouterConfig{AdvisorTimeout: 10 * time.Millisecond}, mock)
		var reasons []string
		r.OnAdvisorFallback(func(reason string) { reasons = append(reasons, reason) })

		if _, err := r.Decide(ctx, "a", aiEdges, NewState("x", nil)); err != nil {
			t.Fatalf("expected graceful fallback, got %v", err)
		}
		if len(reasons) != 1 || reasons[0] != "timeout" {
			t.Errorf("expected one timeout fallback, got %v", reasons)
		}
	})

	t.Run("successful advice records nothing", func(t *testing.T) {
		mock := &advise.MockAdvisor{Rec: advise.Recommendation{Target: "c"}}
		r, _ := newTestRouter(RouterConfig{}, mock)
		var reasons []string
		r.OnAdvisorFallback(func(reason string) { reasons = append(reasons, reason) })

		if _, err := r.Decide(ctx, "a", aiEdges, NewState("x", nil)); err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if len(reasons) != 0 {
			t.Errorf("expected no fallbacks, got %v", reasons)
		}
	})
}

func TestRouterConfig_Defaults(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{}, nil)
	cfg := r.Config()
	if cfg.HistoryWeight != 0.7 || cfg.DefaultHistoryRate != 0.5 {
		t.Errorf("unexpected blend defaults: %+v", cfg)
	}
	if cfg.ProbabilisticJitter != 0.2 || cfg.ExclusiveBoost != 0.2 {
		t.Errorf("unexpected strategy defaults: %+v", cfg)
	}
	if cfg.ContenderThreshold != 0.3 || cfg.AdvisorMultiplier != 1.2 {
		t.Errorf("unexpected routing defaults: %+v", cfg)
	}

	t.Run("advisor multiplier is clamped", func(t *testing.T) {
		r, _ := newTestRouter(RouterConfig{AdvisorMultiplier: 9.0}, nil)
		if got := r.Config().AdvisorMultiplier; got != 1.5 {
			t.Errorf("expected multiplier clamped to 1.5, got %f", got)
		}
	})
}
