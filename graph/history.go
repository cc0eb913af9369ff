package graph

import "sync"

// RoutingHistory keeps running statistics per (from, to) edge: how often
// the edge led to a successful execution and with what confidence it was
// chosen. The router blends these rates into edge scores so the graph
// learns from past outcomes.
//
// RoutingHistory is shared by every concurrent execution of an engine and
// is safe for concurrent use. It is an injected component with its
// lifecycle tied to the engine instance, not a process-wide singleton.
type RoutingHistory struct {
	mu    sync.RWMutex
	stats map[string]*edgeStats
}

type edgeStats struct {
	attempts      int
	successes     int
	confidenceSum float64
}

// NewRoutingHistory creates empty routing statistics.
func NewRoutingHistory() *RoutingHistory {
	return &RoutingHistory{stats: make(map[string]*edgeStats)}
}

func historyKey(from, to string) string {
	return from + "\x1f" + to
}

// RecordOutcome feeds one observed traversal outcome back into the
// statistics. Confidence is the score the router assigned when it chose
// the edge.
func (h *RoutingHistory) RecordOutcome(from, to string, success bool, confidence float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := historyKey(from, to)
	st, ok := h.stats[key]
	if !ok {
		st = &edgeStats{}
		h.stats[key] = st
	}
	st.attempts++
	if success {
		st.successes++
	}
	st.confidenceSum += confidence
}

// SuccessRate returns the fraction of recorded traversals that succeeded.
// The second return is false when the edge has no history.
func (h *RoutingHistory) SuccessRate(from, to string) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st, ok := h.stats[historyKey(from, to)]
	if !ok || st.attempts == 0 {
		return 0, false
	}
	return float64(st.successes) / float64(st.attempts), true
}

// AverageConfidence returns the mean confidence the router assigned when
// choosing this edge. The second return is false when the edge has no
// history.
func (h *RoutingHistory) AverageConfidence(from, to string) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st, ok := h.stats[historyKey(from, to)]
	if !ok || st.attempts == 0 {
		return 0, false
	}
	return st.confidenceSum / float64(st.attempts), true
}
