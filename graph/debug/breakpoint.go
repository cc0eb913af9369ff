package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/halcyon-ai/agentgraph/graph"
	"github.com/halcyon-ai/agentgraph/graph/store"
)

// Kind classifies a breakpoint.
type Kind string

// Breakpoint kinds.
const (
	// KindNode pauses when a specific node is about to run.
	KindNode Kind = "node"

	// KindCondition pauses when a boolean predicate over the state holds.
	KindCondition Kind = "condition"

	// KindVariable pauses when a named state variable changed since the
	// last check.
	KindVariable Kind = "variable"

	// KindDuration pauses when the previously completed node exceeded a
	// duration threshold.
	KindDuration Kind = "duration"
)

// Breakpoint is a pause condition evaluated before each node runs.
type Breakpoint struct {
	// ID uniquely identifies the breakpoint.
	ID string

	// Kind selects the evaluation rule.
	Kind Kind

	// Location is the node ID for KindNode and KindDuration, or the
	// state variable name for KindVariable. Unused for KindCondition.
	Location string

	// Condition is the predicate for KindCondition.
	Condition func(*graph.State) bool

	// Threshold is the duration bound for KindDuration.
	Threshold time.Duration

	// Enabled gates evaluation; disabled breakpoints never hit.
	Enabled bool

	// HitCount counts how many times this breakpoint paused an execution.
	HitCount int
}

// BreakpointSet is a thread-safe collection of breakpoints shared by
// every execution a debug session observes.
type BreakpointSet struct {
	mu     sync.Mutex
	points []*Breakpoint
	nextID int

	// lastSeen fingerprints variable values per (breakpoint, execution)
	// for KindVariable change detection.
	lastSeen map[string]string
}

// NewBreakpointSet creates an empty breakpoint set.
func NewBreakpointSet() *BreakpointSet {
	return &BreakpointSet{lastSeen: make(map[string]string)}
}

// AddNode sets a breakpoint that pauses before the given node runs.
func (b *BreakpointSet) AddNode(nodeID string) *Breakpoint {
	return b.add(&Breakpoint{Kind: KindNode, Location: nodeID, Enabled: true})
}

// AddCondition sets a breakpoint that pauses when cond holds over the
// incoming state.
func (b *BreakpointSet) AddCondition(cond func(*graph.State) bool) *Breakpoint {
	return b.add(&Breakpoint{Kind: KindCondition, Condition: cond, Enabled: true})
}

// AddVariable sets a breakpoint that pauses when the named state variable
// changed since the previous check in the same execution.
func (b *BreakpointSet) AddVariable(name string) *Breakpoint {
	return b.add(&Breakpoint{Kind: KindVariable, Location: name, Enabled: true})
}

// AddDuration sets a breakpoint that pauses after nodeID takes longer
// than threshold.
func (b *BreakpointSet) AddDuration(nodeID string, threshold time.Duration) *Breakpoint {
	return b.add(&Breakpoint{Kind: KindDuration, Location: nodeID, Threshold: threshold, Enabled: true})
}

func (b *BreakpointSet) add(bp *Breakpoint) *Breakpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	bp.ID = fmt.Sprintf("bp-%d", b.nextID)
	b.points = append(b.points, bp)
	return bp
}

// Remove deletes a breakpoint by ID. Removing an unknown ID is a no-op.
func (b *BreakpointSet) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, bp := range b.points {
		if bp.ID == id {
			b.points = append(b.points[:i], b.points[i+1:]...)
			return
		}
	}
}

// SetEnabled toggles a breakpoint without removing it.
func (b *BreakpointSet) SetEnabled(id string, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bp := range b.points {
		if bp.ID == id {
			bp.Enabled = enabled
			return
		}
	}
}

// List returns a copy of the current breakpoints.
func (b *BreakpointSet) List() []Breakpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Breakpoint, len(b.points))
	for i, bp := range b.points {
		out[i] = *bp
	}
	return out
}

// evaluate returns the first enabled breakpoint hit for the upcoming
// node, incrementing its hit count. lastNodeID/lastDuration describe the
// previously completed node for KindDuration.
func (b *BreakpointSet) evaluate(executionID, nodeID string, state *graph.State, lastNodeID string, lastDuration time.Duration) *Breakpoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, bp := range b.points {
		if !bp.Enabled {
			continue
		}
		hit := false
		switch bp.Kind {
		case KindNode:
			hit = bp.Location == nodeID
		case KindCondition:
			hit = bp.Condition != nil && bp.Condition(state)
		case KindVariable:
			hit = b.variableChanged(bp, executionID, state)
		case KindDuration:
			hit = lastNodeID != "" && bp.Location == lastNodeID && lastDuration > bp.Threshold
		}
		if hit {
			bp.HitCount++
			return bp
		}
	}
	return nil
}

// variableChanged fingerprints the watched variable and compares against
// the previous check. The first observation primes the fingerprint
// without hitting.
func (b *BreakpointSet) variableChanged(bp *Breakpoint, executionID string, state *graph.State) bool {
	key := bp.ID + "\x1f" + executionID

	fingerprint := "<unset>"
	if v, ok := state.Get(bp.Location); ok {
		if raw, err := json.Marshal(v); err == nil {
			fingerprint = string(raw)
		} else {
			fingerprint = fmt.Sprintf("%v", v)
		}
	}

	prev, seen := b.lastSeen[key]
	b.lastSeen[key] = fingerprint
	return seen && prev != fingerprint
}

// Persist saves the set's persistable breakpoints under an execution ID
// ("" for workflow-wide) so debug sessions survive restarts. Condition
// breakpoints carry a Go predicate and are skipped.
func (b *BreakpointSet) Persist(ctx context.Context, st store.Store, executionID string) error {
	for _, bp := range b.List() {
		if bp.Kind == KindCondition {
			continue
		}
		location := bp.Location
		if bp.Kind == KindDuration {
			location = fmt.Sprintf("%s>%s", bp.Location, bp.Threshold)
		}
		rec := store.BreakpointRecord{
			ID:          bp.ID,
			ExecutionID: executionID,
			Kind:        string(bp.Kind),
			Location:    location,
			Enabled:     bp.Enabled,
			CreatedAt:   time.Now().UTC(),
		}
		if err := st.SaveBreakpoint(ctx, rec); err != nil {
			return fmt.Errorf("persist breakpoint %s: %w", bp.ID, err)
		}
	}
	return nil
}

// Restore loads persisted breakpoints for an execution into the set.
func (b *BreakpointSet) Restore(ctx context.Context, st store.Store, executionID string) error {
	records, err := st.ListBreakpoints(ctx, executionID)
	if err != nil {
		return fmt.Errorf("restore breakpoints: %w", err)
	}
	for _, rec := range records {
		bp := &Breakpoint{Kind: Kind(rec.Kind), Location: rec.Location, Enabled: rec.Enabled}
		if bp.Kind == KindDuration {
			if node, thr, ok := strings.Cut(rec.Location, ">"); ok {
				if d, err := time.ParseDuration(thr); err == nil {
					bp.Location = node
					bp.Threshold = d
				}
			}
		}
		b.add(bp)
	}
	return nil
}
