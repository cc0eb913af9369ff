// Package graph provides the core execution engine for long-running,
// multi-step AI workflows modeled as directed acyclic graphs.
package graph

// End is the terminal sentinel. An edge targeting End completes the
// execution (or branch) that traverses it. End is always a valid edge
// target; it is never a registered node.
const End = "__end__"

// Strategy is the scoring policy applied to an edge during routing.
type Strategy string

const (
	// StrategySimple scores the edge by its priority alone.
	StrategySimple Strategy = "simple"

	// StrategyWeighted scores by priority scaled with the satisfied
	// fraction of the edge's weighted sub-conditions.
	StrategyWeighted Strategy = "weighted"

	// StrategyProbabilistic applies bounded multiplicative jitter to the
	// blended score, trading determinism for exploration.
	StrategyProbabilistic Strategy = "probabilistic"

	// StrategyExclusive receives a tie-break boost when it is the sole
	// exclusive candidate from a node.
	StrategyExclusive Strategy = "exclusive"

	// StrategyParallel edges are not competitors: every parallel edge
	// with a positive score becomes a concurrent branch.
	StrategyParallel Strategy = "parallel"

	// StrategyAI marks the edge as eligible for AI-assisted routing. When
	// present among candidates the router may consult an external
	// recommendation capability for a bounded score nudge.
	StrategyAI Strategy = "ai"
)

// Predicate evaluates state to decide whether an edge (or a weighted
// sub-condition) is satisfied. Predicates should be pure: deterministic
// and free of side effects.
type Predicate func(state *State) bool

// WeightedCondition is one weighted sub-condition of an edge. The router
// scores a weighted edge by the satisfied fraction of total weight.
type WeightedCondition struct {
	// Weight is this condition's share of the edge score, > 0.
	Weight float64

	// Check evaluates the condition against the current state.
	Check Predicate
}

// Edge is a directed, conditionally scored transition between nodes.
//
// Edges are registered at build time and immutable afterwards. Condition
// gates the edge entirely: an unsatisfied condition removes the edge from
// the candidate set. Weights refine the score of a satisfied edge.
// Priority is the base score in [0,1]; zero priority is normalized to 1.
type Edge struct {
	// From is the source node ID.
	From string

	// To is the destination node ID, or End.
	To string

	// Condition gates traversal. Nil means unconditional.
	Condition Predicate

	// Weights are optional weighted sub-conditions.
	Weights []WeightedCondition

	// Strategy selects the scoring policy. Defaults to StrategySimple
	// (StrategyWeighted when Weights are present).
	Strategy Strategy

	// Priority is the base score in [0,1].
	Priority float64

	// Metadata is surfaced to the AI-assisted routing capability and to
	// trace events; the router itself does not interpret it.
	Metadata map[string]any

	// index is the registration order, used for deterministic tie-breaks
	// and branch order keys.
	index int
}

// Index returns the edge's registration order within its source node.
func (e Edge) Index() int { return e.index }

// EdgeOption customizes an edge at registration time.
type EdgeOption func(*Edge)

// WithStrategy sets the edge's scoring strategy.
func WithStrategy(s Strategy) EdgeOption {
	return func(e *Edge) { e.Strategy = s }
}

// WithPriority sets the edge's base score. Values are clamped to [0,1]
// at build time.
func WithPriority(p float64) EdgeOption {
	return func(e *Edge) { e.Priority = p }
}

// WithWeights attaches weighted sub-conditions and, unless a strategy was
// set explicitly, switches the edge to StrategyWeighted.
func WithWeights(conds ...WeightedCondition) EdgeOption {
	return func(e *Edge) {
		e.Weights = append(e.Weights, conds...)
		if e.Strategy == "" {
			e.Strategy = StrategyWeighted
		}
	}
}

// WithEdgeMetadata attaches metadata visible to the routing advisor and
// trace events.
func WithEdgeMetadata(meta map[string]any) EdgeOption {
	return func(e *Edge) { e.Metadata = meta }
}
