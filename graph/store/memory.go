package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests, development, and short-lived
// single-process workflows. All data is lost when the process exits.
//
// MemStore is safe for concurrent use.
type MemStore struct {
	mu          sync.RWMutex
	states      map[string]map[int]StateRecord // executionID -> version -> record
	checkpoints map[string]Checkpoint          // checkpointID -> checkpoint
	breakpoints map[string]BreakpointRecord    // breakpointID -> record
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		states:      make(map[string]map[int]StateRecord),
		checkpoints: make(map[string]Checkpoint),
		breakpoints: make(map[string]BreakpointRecord),
	}
}

// SaveState implements Store.
func (m *MemStore) SaveState(_ context.Context, rec StateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, ok := m.states[rec.ExecutionID]
	if !ok {
		versions = make(map[int]StateRecord)
		m.states[rec.ExecutionID] = versions
	}
	// Copy the payload so callers reusing buffers cannot corrupt history.
	if rec.Payload != nil {
		rec.Payload = append([]byte(nil), rec.Payload...)
	}
	versions[rec.Version] = rec
	return nil
}

// LoadState implements Store.
func (m *MemStore) LoadState(_ context.Context, executionID string, version int) (StateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.states[executionID][version]
	if !ok {
		return StateRecord{}, ErrNotFound
	}
	return rec, nil
}

// LoadLatest implements Store.
func (m *MemStore) LoadLatest(_ context.Context, executionID string) (StateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.states[executionID]
	if len(versions) == 0 {
		return StateRecord{}, ErrNotFound
	}
	max := -1
	for v := range versions {
		if v > max {
			max = v
		}
	}
	return versions[max], nil
}

// SaveCheckpoint implements Store.
func (m *MemStore) SaveCheckpoint(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.ID] = cp
	return nil
}

// LoadCheckpoint implements Store.
func (m *MemStore) LoadCheckpoint(_ context.Context, id string) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

// ListCheckpoints implements Store.
func (m *MemStore) ListCheckpoints(_ context.Context, executionID string) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Checkpoint
	for _, cp := range m.checkpoints {
		if cp.ExecutionID == executionID {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].StateVersion < out[j].StateVersion
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveBreakpoint implements Store.
func (m *MemStore) SaveBreakpoint(_ context.Context, bp BreakpointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakpoints[bp.ID] = bp
	return nil
}

// ListBreakpoints implements Store.
func (m *MemStore) ListBreakpoints(_ context.Context, executionID string) ([]BreakpointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []BreakpointRecord
	for _, bp := range m.breakpoints {
		if bp.ExecutionID == executionID || bp.ExecutionID == "" {
			out = append(out, bp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteBreakpoint implements Store.
func (m *MemStore) DeleteBreakpoint(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.breakpoints[id]; !ok {
		return ErrNotFound
	}
	delete(m.breakpoints, id)
	return nil
}

// DeleteExecution implements Store.
func (m *MemStore) DeleteExecution(_ context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, executionID)
	for id, cp := range m.checkpoints {
		if cp.ExecutionID == executionID {
			delete(m.checkpoints, id)
		}
	}
	for id, bp := range m.breakpoints {
		if bp.ExecutionID == executionID {
			delete(m.breakpoints, id)
		}
	}
	return nil
}
