// Package debug provides execution tracing, breakpoints, interactive
// pause/resume sessions, and trace replay for workflow executions. It
// consumes the engine's lifecycle events through emit.Emitter and its
// step hook; it never re-invokes node capabilities.
package debug

import (
	"sync"
	"time"

	"github.com/halcyon-ai/agentgraph/graph"
	"github.com/halcyon-ai/agentgraph/graph/emit"
)

// DefaultEventCap bounds the per-execution trace log. Once exceeded the
// oldest events are dropped, keeping memory flat for long executions.
const DefaultEventCap = 10000

// Snapshot is a periodic copy of an execution's state captured during
// tracing, used to inspect intermediate values without replaying.
type Snapshot struct {
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	Version     int       `json:"version"`
	Data        map[string]any `json:"data"`
	Path        []string  `json:"path"`
	TakenAt     time.Time `json:"taken_at"`
}

// Recorder captures lifecycle events into a bounded, ordered
// per-execution log, plus periodic state snapshots. It implements
// emit.Emitter, so it plugs directly into the engine:
//
//	recorder := debug.NewRecorder(0)
//	engine := graph.New(wf, st, graph.WithEmitter(recorder))
//
// Combine with other backends through emit.NewMultiEmitter. Safe for
// concurrent use.
type Recorder struct {
	mu        sync.RWMutex
	cap       int
	events    map[string][]emit.Event
	snapshots map[string][]Snapshot
}

// NewRecorder creates a trace recorder. eventCap bounds the per-execution
// log; zero or negative selects DefaultEventCap.
func NewRecorder(eventCap int) *Recorder {
	if eventCap <= 0 {
		eventCap = DefaultEventCap
	}
	return &Recorder{
		cap:       eventCap,
		events:    make(map[string][]emit.Event),
		snapshots: make(map[string][]Snapshot),
	}
}

// Emit implements emit.Emitter, appending the event to its execution's
// log. The oldest events are dropped once the cap is reached.
func (r *Recorder) Emit(event emit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := append(r.events[event.ExecutionID], event)
	if len(log) > r.cap {
		log = log[len(log)-r.cap:]
	}
	r.events[event.ExecutionID] = log
}

// RecordSnapshot stores a deep copy of the state. The debug session calls
// this periodically; hosts can call it manually around interesting steps.
func (r *Recorder) RecordSnapshot(executionID, nodeID string, state *graph.State) {
	if state == nil {
		return
	}
	copied, err := state.Derive()
	if err != nil {
		return
	}
	snap := Snapshot{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Version:     state.Version,
		Data:        copied.Data,
		Path:        copied.Path,
		TakenAt:     time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[executionID] = append(r.snapshots[executionID], snap)
}

// Events returns a copy of the execution's event log in emission order.
func (r *Recorder) Events(executionID string) []emit.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.events[executionID]
	out := make([]emit.Event, len(log))
	copy(out, log)
	return out
}

// Snapshots returns the execution's captured state snapshots in order.
func (r *Recorder) Snapshots(executionID string) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := r.snapshots[executionID]
	out := make([]Snapshot, len(snaps))
	copy(out, snaps)
	return out
}

// Clear drops the trace for one execution, or everything when
// executionID is empty.
func (r *Recorder) Clear(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if executionID == "" {
		r.events = make(map[string][]emit.Event)
		r.snapshots = make(map[string][]Snapshot)
		return
	}
	delete(r.events, executionID)
	delete(r.snapshots, executionID)
}
