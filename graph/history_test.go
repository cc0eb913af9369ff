package graph

import (
	"math"
	"sync"
	"testing"
)

func TestRoutingHistory_SuccessRate(t *testing.T) {
	h := NewRoutingHistory()

	t.Run("unseen edge has no history", func(t *testing.T) {
		if _, ok := h.SuccessRate("a", "b"); ok {
			t.Error("expected no history for an unseen edge")
		}
	})

	t.Run("rate is the success fraction", func(t *testing.T) {
		h.RecordOutcome("a", "b", true, 0.9)
		h.RecordOutcome("a", "b", true, 0.8)
		h.RecordOutcome("a", "b", false, 0.7)
		h.RecordOutcome("a", "b", false, 0.6)

		rate, ok := h.SuccessRate("a", "b")
		if !ok {
			t.Fatal("expected history after recorded outcomes")
		}
		if math.Abs(rate-0.5) > 1e-9 {
			t.Errorf("expected rate 0.5, got %f", rate)
		}
	})

	t.Run("edges are tracked independently", func(t *testing.T) {
		h.RecordOutcome("a", "c", true, 1.0)
		rate, ok := h.SuccessRate("a", "c")
		if !ok || rate != 1.0 {
			t.Errorf("expected rate 1.0 for a->c, got %f (%v)", rate, ok)
		}
	})
}

func TestRoutingHistory_AverageConfidence(t *testing.T) {
	h := NewRoutingHistory()
	h.RecordOutcome("a", "b", true, 0.6)
	h.RecordOutcome("a", "b", false, 0.8)

	avg, ok := h.AverageConfidence("a", "b")
	if !ok {
		t.Fatal("expected history after recorded outcomes")
	}
	if math.Abs(avg-0.7) > 1e-9 {
		t.Errorf("expected average confidence 0.7, got %f", avg)
	}

	if _, ok := h.AverageConfidence("x", "y"); ok {
		t.Error("expected no confidence for an unseen edge")
	}
}

func TestRoutingHistory_Concurrent(t *testing.T) {
	h := NewRoutingHistory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.RecordOutcome("a", "b", success, 0.5)
				h.SuccessRate("a", "b")
			}
		}(i%2 == 0)
	}
	wg.Wait()

	rate, ok := h.SuccessRate("a", "b")
	if !ok {
		t.Fatal("expected history after concurrent writes")
	}
	if math.Abs(rate-0.5) > 1e-9 {
		t.Errorf("expected rate 0.5 from balanced outcomes, got %f", rate)
	}
}
