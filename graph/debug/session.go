package debug

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/halcyon-ai/agentgraph/graph"
	"github.com/halcyon-ai/agentgraph/graph/emit"
)

// DefaultSnapshotEvery is how many steps pass between automatic state
// snapshots taken by a session.
const DefaultSnapshotEvery = 10

// Session is an interactive debug session over live executions. It
// implements graph.StepHook: wire it into the engine and it evaluates
// breakpoints before each node, pausing the execution until Resume or
// Step is called.
//
//	recorder := debug.NewRecorder(0)
//	session := debug.NewSession(recorder)
//	session.Breakpoints().AddNode("review")
//
//	engine := graph.New(wf, st,
//	    graph.WithEmitter(recorder),
//	    graph.WithHook(session),
//	)
//
// A paused execution blocks inside the engine; cancelling the execution's
// context releases it with the context error. Safe for concurrent use
// across many executions.
type Session struct {
	recorder      *Recorder
	breakpoints   *BreakpointSet
	snapshotEvery int

	mu        sync.Mutex
	paused    map[string]*pausePoint
	stepMode  map[string]bool
	stepCount map[string]int
}

// pausePoint is one blocked execution waiting for a resume command.
type pausePoint struct {
	nodeID string
	bpID   string
	resume chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSnapshotEvery sets how many steps pass between automatic state
// snapshots. Zero disables periodic snapshots.
func WithSnapshotEvery(n int) SessionOption {
	return func(s *Session) { s.snapshotEvery = n }
}

// NewSession creates a debug session recording into the given recorder.
// A nil recorder disables tracing but keeps breakpoints working.
func NewSession(recorder *Recorder, opts ...SessionOption) *Session {
	s := &Session{
		recorder:      recorder,
		breakpoints:   NewBreakpointSet(),
		snapshotEvery: DefaultSnapshotEvery,
		paused:        make(map[string]*pausePoint),
		stepMode:      make(map[string]bool),
		stepCount:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Breakpoints returns the session's breakpoint set.
func (s *Session) Breakpoints() *BreakpointSet { return s.breakpoints }

// BeforeNode implements graph.StepHook. It snapshots state periodically,
// evaluates breakpoints, and blocks the execution while paused.
func (s *Session) BeforeNode(ctx context.Context, executionID, nodeID string, state *graph.State, lastNodeID string, lastDuration time.Duration) error {
	s.mu.Lock()
	s.stepCount[executionID]++
	count := s.stepCount[executionID]
	stepping := s.stepMode[executionID]
	s.mu.Unlock()

	if s.recorder != nil && s.snapshotEvery > 0 && count%s.snapshotEvery == 0 {
		s.recorder.RecordSnapshot(executionID, nodeID, state)
	}

	bp := s.breakpoints.evaluate(executionID, nodeID, state, lastNodeID, lastDuration)
	if bp == nil && !stepping {
		return nil
	}

	point := &pausePoint{nodeID: nodeID, resume: make(chan struct{})}
	meta := map[string]any{"state_version": state.Version}
	if bp != nil {
		point.bpID = bp.ID
		meta["breakpoint_id"] = bp.ID
		meta["breakpoint_kind"] = string(bp.Kind)
	} else {
		meta["step"] = true
	}

	s.mu.Lock()
	s.paused[executionID] = point
	s.stepMode[executionID] = false
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.Emit(emit.Event{
			ID:          graph.NewEventID(),
			ExecutionID: executionID,
			Type:        emit.BreakpointHit,
			NodeID:      nodeID,
			Meta:        meta,
			Timestamp:   time.Now().UTC(),
		})
		s.recorder.RecordSnapshot(executionID, nodeID, state)
	}

	select {
	case <-ctx.Done():
		s.clearPause(executionID)
		return ctx.Err()
	case <-point.resume:
		return nil
	}
}

// Resume releases a paused execution to run freely.
func (s *Session) Resume(executionID string) error {
	return s.release(executionID, false)
}

// Step releases a paused execution for exactly one node, pausing again
// before the next one.
func (s *Session) Step(executionID string) error {
	return s.release(executionID, true)
}

func (s *Session) release(executionID string, step bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	point, ok := s.paused[executionID]
	if !ok {
		return fmt.Errorf("execution %s is not paused", executionID)
	}
	delete(s.paused, executionID)
	s.stepMode[executionID] = step
	close(point.resume)
	return nil
}

func (s *Session) clearPause(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, executionID)
}

// Paused reports whether an execution is currently paused, and at which
// node.
func (s *Session) Paused(executionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	point, ok := s.paused[executionID]
	if !ok {
		return "", false
	}
	return point.nodeID, true
}
