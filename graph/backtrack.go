package graph

import (
	"fmt"
	"sync"
	"time"
)

// BacktrackPoint is a saved routing decision with untried alternatives.
// The router flags a decision for backtracking when non-winning candidates
// score close to the winner; the engine then saves the pre-decision state
// here so a failed path can be replayed forward down another edge.
//
// Backtracking is not a graph cycle: the graph stays acyclic and recovery
// re-executes forward from the saved state.
type BacktrackPoint struct {
	// NodeID is the node at which the decision was made.
	NodeID string

	// State is the state as of the decision, deep-copied so later
	// execution cannot alias it.
	State *State

	// Alternatives maps candidate target node IDs to their routing score.
	Alternatives map[string]float64

	// CreatedAt records when the point was saved.
	CreatedAt time.Time

	tried map[string]bool
}

// MarkTried records that an alternative path has been attempted.
func (p *BacktrackPoint) MarkTried(target string) {
	if p.tried == nil {
		p.tried = make(map[string]bool)
	}
	p.tried[target] = true
}

// bestUntried returns the highest-scoring alternative not yet tried.
func (p *BacktrackPoint) bestUntried() (string, float64, bool) {
	best := ""
	bestScore := -1.0
	for target, score := range p.Alternatives {
		if p.tried[target] {
			continue
		}
		if score > bestScore || (score == bestScore && target < best) {
			best = target
			bestScore = score
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// Alternative is the result of a successful backtrack: the next path to
// try and the saved state to replay it from.
type Alternative struct {
	// FromNode is the decision node the alternative departs from.
	FromNode string

	// Target is the untried next node to route to.
	Target string

	// Score is the routing score the alternative had when saved.
	Score float64

	// State is an independent copy of the saved decision state.
	State *State
}

// BacktrackRegistry holds each execution's stack of saved decision
// points. It is shared by all concurrent executions of an engine and safe
// for concurrent use.
type BacktrackRegistry struct {
	mu     sync.Mutex
	points map[string][]*BacktrackPoint
}

// NewBacktrackRegistry creates an empty registry.
func NewBacktrackRegistry() *BacktrackRegistry {
	return &BacktrackRegistry{points: make(map[string][]*BacktrackPoint)}
}

// Push saves a decision point for an execution. The caller passes a state
// that is already an independent copy.
func (r *BacktrackRegistry) Push(executionID string, point *BacktrackPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if point.tried == nil {
		point.tried = make(map[string]bool)
	}
	r.points[executionID] = append(r.points[executionID], point)
}

// Backtrack finds the execution's most recent decision point, marks the
// path that led to triedNode as tried, and returns the best untried
// alternative together with a fresh copy of the saved state. Decision
// points whose alternatives are all tried are popped; when none remain
// the error wraps ErrBacktrackExhausted.
func (r *BacktrackRegistry) Backtrack(executionID, triedNode string) (*Alternative, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stack := r.points[executionID]
	for len(stack) > 0 {
		point := stack[len(stack)-1]
		point.MarkTried(triedNode)

		target, score, ok := point.bestUntried()
		if !ok {
			// Exhausted point: pop and look at the previous decision.
			stack = stack[:len(stack)-1]
			r.points[executionID] = stack
			continue
		}
		point.MarkTried(target)

		replay, err := point.State.Derive()
		if err != nil {
			return nil, fmt.Errorf("backtrack %s at %s: %w", executionID, point.NodeID, err)
		}
		return &Alternative{
			FromNode: point.NodeID,
			Target:   target,
			Score:    score,
			State:    replay,
		}, nil
	}
	return nil, fmt.Errorf("execution %s: %w", executionID, ErrBacktrackExhausted)
}

// Depth returns how many decision points are saved for an execution.
func (r *BacktrackRegistry) Depth(executionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points[executionID])
}

// Clear drops all saved points for an execution, typically after it
// completes.
func (r *BacktrackRegistry) Clear(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.points, executionID)
}
