// Package store provides persistence for execution state, checkpoints,
// and breakpoint metadata: a document store keyed by execution/version,
// plus a blob store for oversized state payloads referenced by pointer.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested execution, state version,
// checkpoint, or breakpoint does not exist.
var ErrNotFound = errors.New("not found")

// CheckpointType classifies why a checkpoint was taken.
type CheckpointType string

const (
	// CheckpointAuto is written at every node boundary.
	CheckpointAuto CheckpointType = "auto"

	// CheckpointManual is requested explicitly by the host, typically
	// before a risky operation.
	CheckpointManual CheckpointType = "manual"

	// CheckpointError is written when a node fails, preserving the
	// failing state for inspection and resume.
	CheckpointError CheckpointType = "error"

	// CheckpointBranch is written at a parallel fork, one per branch
	// origin.
	CheckpointBranch CheckpointType = "branch"
)

// BlobRef points at an oversized state payload in the blob store.
type BlobRef struct {
	// Key locates the payload in the blob store.
	Key string `json:"key"`

	// Size is the payload size in bytes.
	Size int64 `json:"size"`
}

// StateRecord is the persisted form of one state version. Exactly one of
// Payload and Blob is set: small states are stored inline, large ones are
// offloaded and referenced by pointer.
type StateRecord struct {
	// ExecutionID identifies the owning execution.
	ExecutionID string

	// Version is the state version within the execution.
	Version int

	// NodeID is the node that produced this version.
	NodeID string

	// Payload is the inline serialized state, nil when offloaded.
	Payload []byte

	// Blob references an offloaded payload, nil when inline.
	Blob *BlobRef

	// CreatedAt records when the version was persisted.
	CreatedAt time.Time
}

// Checkpoint is a durable pointer to a persisted state version. A
// checkpoint is only ever written after its state record, so restoring a
// checkpoint always finds its state.
type Checkpoint struct {
	// ID is the unique checkpoint identifier.
	ID string

	// ExecutionID identifies the owning execution.
	ExecutionID string

	// NodeID is the node at whose boundary the checkpoint was taken.
	NodeID string

	// StateVersion is the referenced state version.
	StateVersion int

	// Type classifies the checkpoint (auto, manual, error, branch).
	Type CheckpointType

	// CreatedAt records when the checkpoint was written.
	CreatedAt time.Time
}

// BreakpointRecord is the persisted metadata of a debug breakpoint, kept
// in the document store so debug sessions survive process restarts.
type BreakpointRecord struct {
	// ID is the unique breakpoint identifier.
	ID string

	// ExecutionID scopes the breakpoint, empty for workflow-wide.
	ExecutionID string

	// Kind is the breakpoint kind ("node", "condition", "variable",
	// "duration").
	Kind string

	// Location is the kind-specific location: node ID, variable name, or
	// duration threshold.
	Location string

	// Enabled reports whether the breakpoint is active.
	Enabled bool

	// CreatedAt records when the breakpoint was set.
	CreatedAt time.Time
}

// Store is the document persistence backend. Implementations must be
// safe for concurrent use by many executions; records are per-execution
// and require ordered, at-least-once write semantics.
type Store interface {
	// SaveState persists one state version. Saving the same
	// (execution, version) twice overwrites idempotently.
	SaveState(ctx context.Context, rec StateRecord) error

	// LoadState retrieves a specific state version.
	LoadState(ctx context.Context, executionID string, version int) (StateRecord, error)

	// LoadLatest retrieves the highest persisted version for an execution.
	LoadLatest(ctx context.Context, executionID string) (StateRecord, error)

	// SaveCheckpoint persists a checkpoint pointer. The referenced state
	// version must already be durably saved.
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error

	// LoadCheckpoint retrieves a checkpoint by ID.
	LoadCheckpoint(ctx context.Context, id string) (Checkpoint, error)

	// ListCheckpoints returns an execution's checkpoints ordered by
	// creation time.
	ListCheckpoints(ctx context.Context, executionID string) ([]Checkpoint, error)

	// SaveBreakpoint persists breakpoint metadata, overwriting by ID.
	SaveBreakpoint(ctx context.Context, bp BreakpointRecord) error

	// ListBreakpoints returns breakpoints for an execution, including
	// workflow-wide ones (empty ExecutionID).
	ListBreakpoints(ctx context.Context, executionID string) ([]BreakpointRecord, error)

	// DeleteBreakpoint removes breakpoint metadata by ID.
	DeleteBreakpoint(ctx context.Context, id string) error

	// DeleteExecution removes all records of an execution.
	DeleteExecution(ctx context.Context, executionID string) error
}

// BlobStore holds oversized state payloads referenced by StateRecord
// pointers. Implementations must tolerate repeated Puts of the same key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
