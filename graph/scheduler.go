package graph

import (
	"container/heap"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// branchItem is a schedulable unit of parallel work: one branch spawned by
// a parallel routing decision. The OrderKey gives branches a deterministic
// total order regardless of goroutine completion order, which keeps
// last-writer-wins merges reproducible across runs.
type branchItem struct {
	// OrderKey is a deterministic sort key computed from
	// hash(parent node ID, edge index).
	OrderKey uint64

	// NodeID is the branch's entry node.
	NodeID string

	// State is the branch's isolated state snapshot.
	State *State

	// ParentNodeID is the node that forked this branch.
	ParentNodeID string

	// EdgeIndex is the index of the edge taken from the parent.
	EdgeIndex int
}

// ComputeOrderKey generates a deterministic sort key from the parent node
// ID and edge index.
//
// The key is the first 8 bytes of SHA-256(parentNodeID || edgeIndex) read
// big-endian. Same inputs always produce the same key, so branch merge
// order is stable across replays even when branches finish out of order.
func ComputeOrderKey(parentNodeID string, edgeIndex int) uint64 {
	h := sha256.New()
	h.Write([]byte(parentNodeID))

	edgeBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(edgeBytes, uint32(edgeIndex))
	h.Write(edgeBytes)

	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// BranchExecutionID derives the persisted identity of one parallel
// branch. Sibling branches derive state versions from the same fork
// state, so they must not share the parent's execution ID in the store:
// their records would overwrite each other by (execution, version) and
// checkpoints taken inside a branch would resolve to a sibling's state.
//
// The derived ID is stable for a given fork node and edge, so branch
// checkpoints can be listed and restored after the execution ends.
func BranchExecutionID(executionID, parentNodeID string, edgeIndex int) string {
	return fmt.Sprintf("%s#%x", executionID, ComputeOrderKey(parentNodeID, edgeIndex))
}

// branchHeap implements heap.Interface ordered by OrderKey (min-heap).
type branchHeap []branchItem

func (h branchHeap) Len() int            { return len(h) }
func (h branchHeap) Less(i, j int) bool  { return h[i].OrderKey < h[j].OrderKey }
func (h branchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *branchHeap) Push(x interface{}) { *h = append(*h, x.(branchItem)) }
func (h *branchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// frontier holds the branches of one parallel fork in deterministic order.
//
// Branches are pushed as the router discovers them and popped in OrderKey
// order for both dispatch and merge. Thread-safe.
type frontier struct {
	mu   sync.Mutex
	heap branchHeap
}

func newFrontier() *frontier {
	f := &frontier{}
	heap.Init(&f.heap)
	return f
}

func (f *frontier) push(item branchItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	heap.Push(&f.heap, item)
}

// pop removes and returns the branch with the smallest OrderKey.
func (f *frontier) pop() (branchItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heap.Len() == 0 {
		return branchItem{}, false
	}
	return heap.Pop(&f.heap).(branchItem), true
}

func (f *frontier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// drain returns all remaining branches in OrderKey order.
func (f *frontier) drain() []branchItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]branchItem, 0, f.heap.Len())
	for f.heap.Len() > 0 {
		items = append(items, heap.Pop(&f.heap).(branchItem))
	}
	return items
}
