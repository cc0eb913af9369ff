package graph

import (
	"fmt"
	"time"
)

// Builder assembles a workflow graph. Nodes and edges are registered
// incrementally; Build validates the whole graph and returns an immutable
// Workflow. A Builder is not safe for concurrent use; the Workflow it
// produces is read-only and freely shareable across executions.
type Builder struct {
	nodes     map[string]Node
	nodeOrder []string
	timeouts  map[string]time.Duration
	edges     []Edge
	start     string
}

// NewBuilder creates an empty workflow builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes:    make(map[string]Node),
		timeouts: make(map[string]time.Duration),
	}
}

// AddNode registers a processing step under a unique ID.
func (b *Builder) AddNode(id string, node Node) error {
	if id == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if id == End {
		return &EngineError{Message: "node ID conflicts with terminal sentinel", Code: "RESERVED_NODE_ID"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}
	if _, exists := b.nodes[id]; exists {
		return &EngineError{Message: "duplicate node ID: " + id, Code: "DUPLICATE_NODE"}
	}
	b.nodes[id] = node
	b.nodeOrder = append(b.nodeOrder, id)
	return nil
}

// SetNodeTimeout caps a single node's execution time, overriding the
// engine-wide default for that node. Zero removes the override.
func (b *Builder) SetNodeTimeout(id string, d time.Duration) error {
	if _, exists := b.nodes[id]; !exists {
		return &EngineError{Message: "unknown node ID: " + id, Code: "NODE_NOT_FOUND"}
	}
	if d <= 0 {
		delete(b.timeouts, id)
		return nil
	}
	b.timeouts[id] = d
	return nil
}

// AddEdge registers a conditional transition. A nil condition means the
// edge is unconditional. Node existence is validated at Build time so
// graphs can be declared in any order.
func (b *Builder) AddEdge(from, to string, condition Predicate, opts ...EdgeOption) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}
	edge := Edge{From: from, To: to, Condition: condition, Priority: 1.0}
	for _, opt := range opts {
		opt(&edge)
	}
	if edge.Strategy == "" {
		edge.Strategy = StrategySimple
	}
	if edge.Priority < 0 {
		edge.Priority = 0
	}
	if edge.Priority > 1 {
		edge.Priority = 1
	}
	for _, wc := range edge.Weights {
		if wc.Weight <= 0 {
			return &EngineError{Message: fmt.Sprintf("edge %s->%s: condition weight must be positive", from, to), Code: "INVALID_WEIGHT"}
		}
	}
	b.edges = append(b.edges, edge)
	return nil
}

// StartAt sets the entry node for executions of the built workflow.
func (b *Builder) StartAt(id string) error {
	if id == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}
	b.start = id
	return nil
}

// Build validates the graph and freezes it into a Workflow.
//
// Validation failures:
//   - start node missing or unregistered
//   - an edge endpoint referencing an unknown node (End is always valid)
//   - any cycle reachable from any node, reported as *GraphCycleError
//     naming the cycle
func (b *Builder) Build() (*Workflow, error) {
	if b.start == "" {
		return nil, &EngineError{Message: "start node not set (call StartAt before Build)", Code: "NO_START_NODE"}
	}
	if _, ok := b.nodes[b.start]; !ok {
		return nil, &EngineError{Message: "start node does not exist: " + b.start, Code: "NODE_NOT_FOUND"}
	}

	edgesByFrom := make(map[string][]Edge, len(b.nodes))
	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, &EngineError{Message: fmt.Sprintf("edge %s->%s references unknown node %s", e.From, e.To, e.From), Code: "NODE_NOT_FOUND"}
		}
		if _, ok := b.nodes[e.To]; !ok && e.To != End {
			return nil, &EngineError{Message: fmt.Sprintf("edge %s->%s references unknown node %s", e.From, e.To, e.To), Code: "NODE_NOT_FOUND"}
		}
		e.index = len(edgesByFrom[e.From])
		edgesByFrom[e.From] = append(edgesByFrom[e.From], e)
	}

	if cycle := findCycle(b.nodeOrder, edgesByFrom); cycle != nil {
		return nil, &GraphCycleError{Cycle: cycle}
	}

	nodes := make(map[string]Node, len(b.nodes))
	for id, n := range b.nodes {
		nodes[id] = n
	}
	timeouts := make(map[string]time.Duration, len(b.timeouts))
	for id, d := range b.timeouts {
		timeouts[id] = d
	}
	return &Workflow{
		nodes:     nodes,
		nodeOrder: append([]string(nil), b.nodeOrder...),
		timeouts:  timeouts,
		edges:     edgesByFrom,
		start:     b.start,
	}, nil
}

// findCycle runs an iterative depth-first search over every node with
// three-color marking. It returns the first cycle found as a node path
// with the entry node repeated at the end, or nil for an acyclic graph.
func findCycle(order []string, edges map[string][]Edge) []string {
	const (
		white = iota // unvisited
		gray         // on the current DFS path
		black        // fully explored
	)
	color := make(map[string]int, len(order))

	var path []string
	var dfs func(id string) []string
	dfs = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		for _, e := range edges[id] {
			if e.To == End {
				continue
			}
			switch color[e.To] {
			case white:
				if cycle := dfs(e.To); cycle != nil {
					return cycle
				}
			case gray:
				// Trim the path back to the cycle entry point.
				start := 0
				for i, n := range path {
					if n == e.To {
						start = i
						break
					}
				}
				cycle := append([]string(nil), path[start:]...)
				return append(cycle, e.To)
			}
		}
		color[id] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, id := range order {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Workflow is an immutable, validated graph definition. It carries no
// per-execution state and is shared by every execution the engine runs.
type Workflow struct {
	nodes     map[string]Node
	nodeOrder []string
	timeouts  map[string]time.Duration
	edges     map[string][]Edge
	start     string
}

// Node returns the capability registered under id.
func (w *Workflow) Node(id string) (Node, bool) {
	n, ok := w.nodes[id]
	return n, ok
}

// EdgesFrom returns the outgoing edges of a node in registration order.
// The returned slice must not be modified.
func (w *Workflow) EdgesFrom(id string) []Edge {
	return w.edges[id]
}

// NodeTimeout returns the per-node timeout override, or zero when none
// was configured.
func (w *Workflow) NodeTimeout(id string) time.Duration {
	return w.timeouts[id]
}

// Start returns the entry node ID.
func (w *Workflow) Start() string { return w.start }

// NodeIDs returns all registered node IDs in registration order.
func (w *Workflow) NodeIDs() []string {
	return append([]string(nil), w.nodeOrder...)
}
