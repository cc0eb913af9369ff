package emit

import "time"

// EventType classifies an observability event.
type EventType string

// Event types emitted during workflow execution.
const (
	ExecutionStart EventType = "execution_start"
	ExecutionEnd   EventType = "execution_end"
	NodeEnter      EventType = "node_enter"
	NodeExit       EventType = "node_exit"
	NodeError      EventType = "node_error"
	EdgeTraversal  EventType = "edge_traversal"
	StateChange    EventType = "state_change"
	CheckpointSave EventType = "checkpoint"
	BreakpointHit  EventType = "breakpoint_hit"
)

// Event represents an observability event emitted during workflow execution.
//
// Events provide detailed insight into workflow behavior:
//   - Node entry and exit
//   - Routing decisions and edge traversals
//   - State changes and checkpoint saves
//   - Errors and breakpoint hits
//
// Events are emitted to an Emitter which can:
//   - Log to stdout/stderr
//   - Send to OpenTelemetry
//   - Buffer in memory for trace inspection and replay
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// ExecutionID identifies the workflow execution that emitted this event.
	ExecutionID string `json:"execution_id"`

	// Seq is the 1-indexed position of this event within its execution.
	// Zero when the emitting component does not track ordering.
	Seq int `json:"seq"`

	// Type classifies the event.
	Type EventType `json:"type"`

	// NodeID identifies which node the event relates to.
	// Empty string for execution-level events.
	NodeID string `json:"node_id,omitempty"`

	// Msg is a human-readable description of the event.
	Msg string `json:"msg,omitempty"`

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": execution duration in milliseconds
	//   - "error": error details
	//   - "next": routing target chosen
	//   - "confidence": routing confidence score
	//   - "checkpoint_id": checkpoint identifier
	//   - "state_version": state version after a change
	Meta map[string]any `json:"meta,omitempty"`

	// Timestamp records when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
