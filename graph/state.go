package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the versioned working memory of one execution.
//
// Each execution owns a chain of State versions. A State is never mutated
// in place across step boundaries: the engine calls Derive to produce the
// next version, and Derive deep-copies Data, Path, and Metadata so that no
// two versions share mutable structure. This is the single mechanism that
// makes parallel branch forking and backtracking safe.
//
// Data holds the workflow's working values, Path the ordered list of
// visited node IDs, and Metadata engine-written diagnostics (errors,
// routing explanations, branch provenance).
type State struct {
	// ExecutionID identifies the execution this state belongs to.
	ExecutionID string `json:"execution_id"`

	// Version increases monotonically within one execution chain.
	Version int `json:"version"`

	// Data is the execution's working values.
	Data map[string]any `json:"data"`

	// Path is the ordered list of node IDs visited so far.
	Path []string `json:"path"`

	// Metadata carries engine diagnostics and host annotations.
	Metadata map[string]any `json:"metadata"`

	// UpdatedAt records when this version was produced.
	UpdatedAt time.Time `json:"updated_at"`

	dirty bool
}

// NewState creates version 1 of an execution's state chain.
// A nil initial map is replaced with an empty one.
func NewState(executionID string, initial map[string]any) *State {
	data := make(map[string]any, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &State{
		ExecutionID: executionID,
		Version:     1,
		Data:        data,
		Path:        make([]string, 0, 8),
		Metadata:    make(map[string]any),
		UpdatedAt:   time.Now().UTC(),
		dirty:       true,
	}
}

// Derive produces the next version of this state as an independent deep
// copy. The copy is made with a JSON round trip, which handles every value
// the store can persist; values that do not survive JSON (channels,
// functions) are rejected here rather than at save time.
//
// Mutating the derived state never changes the parent.
func (s *State) Derive() (*State, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("derive state v%d: %w", s.Version, err)
	}
	child := &State{}
	if err := json.Unmarshal(raw, child); err != nil {
		return nil, fmt.Errorf("derive state v%d: %w", s.Version, err)
	}
	if child.Data == nil {
		child.Data = make(map[string]any)
	}
	if child.Metadata == nil {
		child.Metadata = make(map[string]any)
	}
	if child.Path == nil {
		child.Path = make([]string, 0, 8)
	}
	child.Version = s.Version + 1
	child.UpdatedAt = time.Now().UTC()
	child.dirty = true
	return child, nil
}

// Get returns a working value and whether it is present.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.Data[key]
	return v, ok
}

// Set stores a working value and marks the state dirty.
func (s *State) Set(key string, value any) {
	s.Data[key] = value
	s.dirty = true
	s.UpdatedAt = time.Now().UTC()
}

// Meta returns a metadata value and whether it is present.
func (s *State) Meta(key string) (any, bool) {
	v, ok := s.Metadata[key]
	return v, ok
}

// SetMeta stores a metadata value and marks the state dirty.
func (s *State) SetMeta(key string, value any) {
	s.Metadata[key] = value
	s.dirty = true
	s.UpdatedAt = time.Now().UTC()
}

// Visit appends a node ID to the visit path.
func (s *State) Visit(nodeID string) {
	s.Path = append(s.Path, nodeID)
	s.dirty = true
	s.UpdatedAt = time.Now().UTC()
}

// Dirty reports whether the state changed since the last successful save.
// The engine skips persistence for clean states, so saving after every
// step is cheap.
func (s *State) Dirty() bool { return s.dirty }

// MarkClean clears the dirty flag after a successful save.
func (s *State) MarkClean() { s.dirty = false }

// MarshalPayload serializes the state for persistence.
func (s *State) MarshalPayload() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state v%d: %w", s.Version, err)
	}
	return raw, nil
}

// StateFromPayload reconstructs a persisted state. The result is clean:
// it matches what the store holds.
func StateFromPayload(payload []byte) (*State, error) {
	st := &State{}
	if err := json.Unmarshal(payload, st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if st.Data == nil {
		st.Data = make(map[string]any)
	}
	if st.Metadata == nil {
		st.Metadata = make(map[string]any)
	}
	return st, nil
}
