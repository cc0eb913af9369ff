package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// This emitter captures events and provides query capabilities for
// execution history analysis. Events are organized by execution ID for
// efficient retrieval and filtering.
//
// Features:
//   - Thread-safe concurrent access
//   - Optional per-execution cap: oldest events are dropped when exceeded
//   - Query by execution ID with optional filtering
//   - Clear events by execution ID or all events
//
// Warning: this emitter stores events in memory. For long-running
// workflows set a cap, or use a persistent backend.
type BufferedEmitter struct {
	mu     sync.RWMutex
	cap    int
	events map[string][]Event // executionID -> events
}

// HistoryFilter specifies criteria for filtering execution history.
//
// All filter fields are optional. When multiple fields are set, they are
// combined with AND logic (all conditions must match).
type HistoryFilter struct {
	NodeID string    // Filter by node ID (empty = no filter)
	Type   EventType // Filter by event type (empty = no filter)
	MinSeq *int      // Minimum sequence number (nil = no filter)
	MaxSeq *int      // Maximum sequence number (nil = no filter)
}

// NewBufferedEmitter creates an unbounded BufferedEmitter.
//
// Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// NewCappedEmitter creates a BufferedEmitter that keeps at most maxEvents
// per execution, dropping the oldest when the cap is exceeded.
func NewCappedEmitter(maxEvents int) *BufferedEmitter {
	return &BufferedEmitter{
		cap:    maxEvents,
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
//
// Events are organized by execution ID for efficient retrieval. When a cap
// is configured the oldest events for that execution are discarded first.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := append(b.events[event.ExecutionID], event)
	if b.cap > 0 && len(buf) > b.cap {
		buf = buf[len(buf)-b.cap:]
	}
	b.events[event.ExecutionID] = buf
}

// GetHistory retrieves all buffered events for a specific execution.
//
// Returns events in the order they were emitted. Returns an empty slice
// if no events exist for the given execution ID.
//
// This method returns a copy of the events to prevent concurrent
// modification issues.
func (b *BufferedEmitter) GetHistory(executionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[executionID]
	if events == nil {
		return []Event{}
	}

	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter retrieves filtered events for a specific execution.
//
// Applies the provided filter criteria to select matching events. All
// filter conditions must match for an event to be included (AND logic).
//
// Returns events in the order they were emitted, as a copy.
func (b *BufferedEmitter) GetHistoryWithFilter(executionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[executionID]
	if events == nil {
		return []Event{}
	}

	var result []Event
	for _, event := range events {
		if !matchesFilter(event, filter) {
			continue
		}
		result = append(result, event)
	}
	if result == nil {
		return []Event{}
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.MinSeq != nil && event.Seq < *filter.MinSeq {
		return false
	}
	if filter.MaxSeq != nil && event.Seq > *filter.MaxSeq {
		return false
	}
	return true
}

// Clear removes stored events.
//
// If executionID is non-empty, clears only events for that execution.
// If executionID is empty, clears all stored events.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if executionID == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, executionID)
	}
}
