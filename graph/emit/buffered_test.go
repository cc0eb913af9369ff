package emit

import (
	"sync"
	"testing"
)

func bufEvent(executionID string, seq int, eventType EventType, nodeID string) Event {
	return Event{ExecutionID: executionID, Seq: seq, Type: eventType, NodeID: nodeID}
}

func TestBufferedEmitter_GetHistory(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(bufEvent("e1", 1, ExecutionStart, ""))
	b.Emit(bufEvent("e1", 2, NodeEnter, "a"))
	b.Emit(bufEvent("e2", 1, ExecutionStart, ""))

	t.Run("events are grouped by execution", func(t *testing.T) {
		if got := b.GetHistory("e1"); len(got) != 2 {
			t.Errorf("expected 2 events for e1, got %d", len(got))
		}
		if got := b.GetHistory("e2"); len(got) != 1 {
			t.Errorf("expected 1 event for e2, got %d", len(got))
		}
	})

	t.Run("unknown execution yields empty slice", func(t *testing.T) {
		got := b.GetHistory("ghost")
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", got)
		}
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		got := b.GetHistory("e1")
		got[0].NodeID = "tampered"
		if b.GetHistory("e1")[0].NodeID == "tampered" {
			t.Error("GetHistory leaked internal storage")
		}
	})
}

func TestBufferedEmitter_Filter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(bufEvent("e1", 1, NodeEnter, "a"))
	b.Emit(bufEvent("e1", 2, NodeExit, "a"))
	b.Emit(bufEvent("e1", 3, NodeEnter, "b"))
	b.Emit(bufEvent("e1", 4, NodeExit, "b"))

	t.Run("by node", func(t *testing.T) {
		got := b.GetHistoryWithFilter("e1", HistoryFilter{NodeID: "a"})
		if len(got) != 2 {
			t.Errorf("expected 2 events for node a, got %d", len(got))
		}
	})

	t.Run("by type", func(t *testing.T) {
		got := b.GetHistoryWithFilter("e1", HistoryFilter{Type: NodeEnter})
		if len(got) != 2 {
			t.Errorf("expected 2 enter events, got %d", len(got))
		}
	})

	t.Run("by sequence range", func(t *testing.T) {
		min, max := 2, 3
		got := b.GetHistoryWithFilter("e1", HistoryFilter{MinSeq: &min, MaxSeq: &max})
		if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 3 {
			t.Errorf("expected seqs [2 3], got %v", got)
		}
	})

	t.Run("combined criteria", func(t *testing.T) {
		got := b.GetHistoryWithFilter("e1", HistoryFilter{NodeID: "b", Type: NodeExit})
		if len(got) != 1 || got[0].Seq != 4 {
			t.Errorf("expected the single b exit, got %v", got)
		}
	})

	t.Run("no match yields empty slice", func(t *testing.T) {
		got := b.GetHistoryWithFilter("e1", HistoryFilter{NodeID: "z"})
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", got)
		}
	})
}

func TestCappedEmitter(t *testing.T) {
	b := NewCappedEmitter(3)
	for i := 1; i <= 5; i++ {
		b.Emit(bufEvent("e1", i, NodeEnter, "a"))
	}

	got := b.GetHistory("e1")
	if len(got) != 3 {
		t.Fatalf("expected cap of 3 events, got %d", len(got))
	}
	// Oldest dropped first.
	if got[0].Seq != 3 || got[2].Seq != 5 {
		t.Errorf("expected seqs [3 4 5], got %v", []int{got[0].Seq, got[1].Seq, got[2].Seq})
	}
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(bufEvent("e1", 1, NodeEnter, "a"))
	b.Emit(bufEvent("e2", 1, NodeEnter, "a"))

	t.Run("single execution", func(t *testing.T) {
		b.Clear("e1")
		if len(b.GetHistory("e1")) != 0 {
			t.Error("expected e1 cleared")
		}
		if len(b.GetHistory("e2")) != 1 {
			t.Error("expected e2 untouched")
		}
	})

	t.Run("everything", func(t *testing.T) {
		b.Clear("")
		if len(b.GetHistory("e2")) != 0 {
			t.Error("expected all events cleared")
		}
	})
}

func TestBufferedEmitter_Concurrent(t *testing.T) {
	b := NewBufferedEmitter()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Emit(bufEvent("e1", j, NodeEnter, "a"))
				b.GetHistory("e1")
			}
		}()
	}
	wg.Wait()

	if got := len(b.GetHistory("e1")); got != 800 {
		t.Errorf("expected 800 events, got %d", got)
	}
}

func TestMultiEmitter(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	m := NewMultiEmitter(a, nil, b)

	m.Emit(bufEvent("e1", 1, NodeEnter, "x"))

	if len(a.GetHistory("e1")) != 1 || len(b.GetHistory("e1")) != 1 {
		t.Error("expected the event fanned out to every emitter")
	}
}

func TestNullEmitter(t *testing.T) {
	// Must simply not panic.
	NewNullEmitter().Emit(bufEvent("e1", 1, NodeEnter, "a"))
}
