package debug

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halcyon-ai/agentgraph/graph"
	"github.com/halcyon-ai/agentgraph/graph/emit"
	"github.com/halcyon-ai/agentgraph/graph/store"
)

func stepNode(key string) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, s *graph.State) (*graph.State, error) {
		next, err := s.Derive()
		if err != nil {
			return nil, err
		}
		next.Set(key, true)
		return next, nil
	})
}

// debugWorkflow builds a -> b -> c.
func debugWorkflow(t *testing.T) *graph.Workflow {
	t.Helper()
	b := graph.NewBuilder()
	_ = b.AddNode("a", stepNode("ran_a"))
	_ = b.AddNode("b", stepNode("ran_b"))
	_ = b.AddNode("c", stepNode("ran_c"))
	_ = b.AddEdge("a", "b", nil)
	_ = b.AddEdge("b", "c", nil)
	_ = b.StartAt("a")
	wf, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return wf
}

func waitPaused(t *testing.T, s *Session, executionID string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if node, ok := s.Paused(executionID); ok {
			return node
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("execution never paused")
	return ""
}

func TestSession_BreakpointPauseResume(t *testing.T) {
	recorder := NewRecorder(0)
	session := NewSession(recorder)
	session.Breakpoints().AddNode("b")

	eng := graph.New(debugWorkflow(t), store.NewMemStore(),
		graph.WithEmitter(recorder),
		graph.WithHook(session),
	)

	type result struct {
		state *graph.State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		st, err := eng.Execute(context.Background(), "exec-dbg", nil)
		done <- result{st, err}
	}()

	node := waitPaused(t, session, "exec-dbg")
	if node != "b" {
		t.Errorf("expected pause at node b, got %q", node)
	}

	t.Run("breakpoint hit is recorded", func(t *testing.T) {
		found := false
		for _, ev := range recorder.Events("exec-dbg") {
			if ev.Type == emit.BreakpointHit && ev.NodeID == "b" {
				found = true
			}
		}
		if !found {
			t.Error("expected a breakpoint_hit event in the trace")
		}
	})

	t.Run("snapshot captured at the pause", func(t *testing.T) {
		snaps := recorder.Snapshots("exec-dbg")
		if len(snaps) == 0 {
			t.Fatal("expected a snapshot at the breakpoint")
		}
		last := snaps[len(snaps)-1]
		if last.NodeID != "b" {
			t.Errorf("expected snapshot at b, got %q", last.NodeID)
		}
	})

	if err := session.Resume("exec-dbg"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("execution failed after resume: %v", res.err)
		}
		for _, key := range []string{"ran_a", "ran_b", "ran_c"} {
			if v, _ := res.state.Get(key); v != true {
				t.Errorf("expected %s=true after resume, got %v", key, v)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not finish after Resume")
	}

	t.Run("pause state is cleared", func(t *testing.T) {
		if _, ok := session.Paused("exec-dbg"); ok {
			t.Error("execution still reported paused after completion")
		}
	})
}

func TestSession_SingleStep(t *testing.T) {
	recorder := NewRecorder(0)
	session := NewSession(recorder)
	session.Breakpoints().AddNode("a")

	eng := graph.New(debugWorkflow(t), store.NewMemStore(),
		graph.WithEmitter(recorder),
		graph.WithHook(session),
	)

	done := make(chan error, 1)
	go func() {
		_, err := eng.Execute(context.Background(), "exec-step", nil)
		done <- err
	}()

	if node := waitPaused(t, session, "exec-step"); node != "a" {
		t.Fatalf("expected initial pause at a, got %q", node)
	}

	// Step runs exactly one node, then pauses before the next.
	if err := session.Step("exec-step"); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if node := waitPaused(t, session, "exec-step"); node != "b" {
		t.Fatalf("expected step pause at b, got %q", node)
	}

	if err := session.Step("exec-step"); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if node := waitPaused(t, session, "exec-step"); node != "c" {
		t.Fatalf("expected step pause at c, got %q", node)
	}

	if err := session.Resume("exec-step"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("execution failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not finish")
	}
}

func TestSession_CancelWhilePaused(t *testing.T) {
	session := NewSession(NewRecorder(0))
	session.Breakpoints().AddNode("b")

	eng := graph.New(debugWorkflow(t), store.NewMemStore(), graph.WithHook(session))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := eng.Execute(ctx, "exec-intr", nil)
		done <- err
	}()

	waitPaused(t, session, "exec-intr")
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("paused execution ignored cancellation")
	}

	if _, ok := session.Paused("exec-intr"); ok {
		t.Error("cancelled execution still reported paused")
	}
}

func TestSession_ResumeNotPaused(t *testing.T) {
	session := NewSession(NewRecorder(0))
	if err := session.Resume("nobody"); err == nil {
		t.Error("expected error resuming a non-paused execution")
	}
	if err := session.Step("nobody"); err == nil {
		t.Error("expected error stepping a non-paused execution")
	}
}

func TestSession_PeriodicSnapshots(t *testing.T) {
	recorder := NewRecorder(0)
	session := NewSession(recorder, WithSnapshotEvery(1))

	eng := graph.New(debugWorkflow(t), store.NewMemStore(),
		graph.WithEmitter(recorder),
		graph.WithHook(session),
	)
	if _, err := eng.Execute(context.Background(), "exec-snap", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	snaps := recorder.Snapshots("exec-snap")
	if len(snaps) != 3 {
		t.Fatalf("expected a snapshot per step, got %d", len(snaps))
	}
	if snaps[0].NodeID != "a" || snaps[2].NodeID != "c" {
		t.Errorf("unexpected snapshot nodes: %+v", snaps)
	}
}
