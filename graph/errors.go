package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoValidRoute indicates routing found no positive-scoring edge and no
// qualifying parallel edge from the current node. Fatal for the execution.
var ErrNoValidRoute = errors.New("no valid route")

// ErrNodeTimeout indicates a node capability exceeded its configured
// execution bound. Treated as a node execution failure.
var ErrNodeTimeout = errors.New("node execution timeout")

// ErrMaxStepsExceeded indicates the execution reached the step budget
// without completing, guarding against misconfigured conditional exits.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrBacktrackExhausted is returned by Backtrack once every scored
// alternative of every saved decision point has been tried.
var ErrBacktrackExhausted = errors.New("backtrack exhausted: no untried alternatives remain")

// ErrQuotaExceeded indicates the tenant gate denied the operation for
// quota reasons. The step is not executed and not auto-retried.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrAccessDenied indicates the tenant gate denied the operation for
// authorization reasons.
var ErrAccessDenied = errors.New("access denied")

// ErrExecutionNotFound is returned by Status, Cancel, and Backtrack when
// the execution ID is unknown to this engine instance.
var ErrExecutionNotFound = errors.New("execution not found")

// EngineError represents a configuration or lifecycle error from Engine
// operations, carrying a machine-readable code.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// GraphCycleError reports a cycle found during Build, naming the cycle's
// node sequence. The graph must be acyclic; backtracking is replayed
// forward from saved states, never through back-edges.
type GraphCycleError struct {
	// Cycle lists the node IDs forming the cycle, first node repeated at
	// the end.
	Cycle []string
}

func (e *GraphCycleError) Error() string {
	return "graph contains a cycle: " + strings.Join(e.Cycle, " -> ")
}

// PersistenceError wraps a checkpoint or state store failure. Persistence
// failures are fatal for the execution: it cannot safely proceed past an
// unpersisted state.
type PersistenceError struct {
	// Op names the failing operation, e.g. "save state" or "load checkpoint".
	Op string

	// Err is the underlying store error.
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *PersistenceError) Unwrap() error { return e.Err }
