package debug

import (
	"context"
	"testing"
	"time"

	"github.com/halcyon-ai/agentgraph/graph"
	"github.com/halcyon-ai/agentgraph/graph/store"
)

func TestBreakpointSet_Node(t *testing.T) {
	bs := NewBreakpointSet()
	bp := bs.AddNode("review")
	state := graph.NewState("e1", nil)

	t.Run("hits on the watched node", func(t *testing.T) {
		hit := bs.evaluate("e1", "review", state, "", 0)
		if hit == nil || hit.ID != bp.ID {
			t.Fatalf("expected hit on %s, got %+v", bp.ID, hit)
		}
	})

	t.Run("other nodes pass", func(t *testing.T) {
		if hit := bs.evaluate("e1", "draft", state, "", 0); hit != nil {
			t.Errorf("unexpected hit: %+v", hit)
		}
	})

	t.Run("hit count accumulates", func(t *testing.T) {
		bs.evaluate("e1", "review", state, "", 0)
		list := bs.List()
		if len(list) != 1 || list[0].HitCount != 2 {
			t.Errorf("expected 2 hits, got %+v", list)
		}
	})
}

func TestBreakpointSet_Condition(t *testing.T) {
	bs := NewBreakpointSet()
	bs.AddCondition(func(s *graph.State) bool {
		v, _ := s.Get("retries")
		f, _ := v.(float64)
		return f > 2
	})

	calm := graph.NewState("e1", map[string]any{"retries": float64(1)})
	if hit := bs.evaluate("e1", "any", calm, "", 0); hit != nil {
		t.Errorf("condition should not hold yet: %+v", hit)
	}

	hot := graph.NewState("e1", map[string]any{"retries": float64(3)})
	if hit := bs.evaluate("e1", "any", hot, "", 0); hit == nil {
		t.Error("expected hit once the condition holds")
	}
}

func TestBreakpointSet_Variable(t *testing.T) {
	bs := NewBreakpointSet()
	bs.AddVariable("plan")

	state := graph.NewState("e1", map[string]any{"plan": "draft"})

	t.Run("first observation primes without hitting", func(t *testing.T) {
		if hit := bs.evaluate("e1", "a", state, "", 0); hit != nil {
			t.Errorf("priming observation must not hit: %+v", hit)
		}
	})

	t.Run("unchanged value passes", func(t *testing.T) {
		if hit := bs.evaluate("e1", "b", state, "", 0); hit != nil {
			t.Errorf("unchanged variable must not hit: %+v", hit)
		}
	})

	t.Run("change hits", func(t *testing.T) {
		state.Set("plan", "final")
		if hit := bs.evaluate("e1", "c", state, "", 0); hit == nil {
			t.Error("expected hit after the variable changed")
		}
	})

	t.Run("executions are tracked independently", func(t *testing.T) {
		other := graph.NewState("e2", map[string]any{"plan": "anything"})
		if hit := bs.evaluate("e2", "a", other, "", 0); hit != nil {
			t.Errorf("first observation in a new execution must prime, not hit: %+v", hit)
		}
	})
}

func TestBreakpointSet_Duration(t *testing.T) {
	bs := NewBreakpointSet()
	bs.AddDuration("slow_model", 500*time.Millisecond)
	state := graph.NewState("e1", nil)

	t.Run("hits when the previous node exceeded the threshold", func(t *testing.T) {
		if hit := bs.evaluate("e1", "next", state, "slow_model", 800*time.Millisecond); hit == nil {
			t.Error("expected hit above threshold")
		}
	})

	t.Run("fast runs pass", func(t *testing.T) {
		if hit := bs.evaluate("e1", "next", state, "slow_model", 100*time.Millisecond); hit != nil {
			t.Errorf("unexpected hit below threshold: %+v", hit)
		}
	})

	t.Run("other nodes pass", func(t *testing.T) {
		if hit := bs.evaluate("e1", "next", state, "fast_node", time.Hour); hit != nil {
			t.Errorf("unexpected hit for unwatched node: %+v", hit)
		}
	})

	t.Run("first step has no previous node", func(t *testing.T) {
		if hit := bs.evaluate("e1", "slow_model", state, "", 0); hit != nil {
			t.Errorf("unexpected hit at the first step: %+v", hit)
		}
	})
}

func TestBreakpointSet_EnableRemove(t *testing.T) {
	bs := NewBreakpointSet()
	bp := bs.AddNode("a")
	state := graph.NewState("e1", nil)

	t.Run("disabled breakpoints never hit", func(t *testing.T) {
		bs.SetEnabled(bp.ID, false)
		if hit := bs.evaluate("e1", "a", state, "", 0); hit != nil {
			t.Errorf("disabled breakpoint hit: %+v", hit)
		}
		bs.SetEnabled(bp.ID, true)
		if hit := bs.evaluate("e1", "a", state, "", 0); hit == nil {
			t.Error("re-enabled breakpoint should hit")
		}
	})

	t.Run("remove", func(t *testing.T) {
		bs.Remove(bp.ID)
		if len(bs.List()) != 0 {
			t.Error("expected empty set after Remove")
		}
		if hit := bs.evaluate("e1", "a", state, "", 0); hit != nil {
			t.Errorf("removed breakpoint hit: %+v", hit)
		}
	})

	t.Run("remove unknown ID is a no-op", func(t *testing.T) {
		bs.Remove("bp-404")
	})
}

func TestBreakpointSet_PersistRestore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()

	bs := NewBreakpointSet()
	bs.AddNode("review")
	bs.AddVariable("plan")
	bs.AddDuration("slow_model", 500*time.Millisecond)
	bs.AddCondition(func(s *graph.State) bool { return true })

	if err := bs.Persist(ctx, st, "e1"); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	restored := NewBreakpointSet()
	if err := restored.Restore(ctx, st, "e1"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	list := restored.List()
	// Condition breakpoints carry Go code and cannot be persisted.
	if len(list) != 3 {
		t.Fatalf("expected 3 restored breakpoints, got %d", len(list))
	}

	byKind := make(map[Kind]Breakpoint)
	for _, bp := range list {
		byKind[bp.Kind] = bp
	}
	if bp := byKind[KindNode]; bp.Location != "review" || !bp.Enabled {
		t.Errorf("unexpected node breakpoint: %+v", bp)
	}
	if bp := byKind[KindVariable]; bp.Location != "plan" {
		t.Errorf("unexpected variable breakpoint: %+v", bp)
	}
	if bp := byKind[KindDuration]; bp.Location != "slow_model" || bp.Threshold != 500*time.Millisecond {
		t.Errorf("unexpected duration breakpoint: %+v", bp)
	}

	t.Run("restored breakpoints evaluate", func(t *testing.T) {
		state := graph.NewState("e1", nil)
		if hit := restored.evaluate("e1", "review", state, "", 0); hit == nil {
			t.Error("restored node breakpoint did not hit")
		}
	})
}
