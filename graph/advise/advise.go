// Package advise defines the AI-assisted routing capability: an external
// recommender the router may consult when candidate edges are tagged for
// AI assistance. A recommendation is a soft nudge, a bounded score
// multiplier on one candidate, never a hard override; any failure or
// malformed response degrades gracefully to the router's own scores.
package advise

import "context"

// Candidate describes one routing candidate presented to the advisor.
type Candidate struct {
	// Target is the candidate's destination node ID.
	Target string `json:"target"`

	// Score is the router's pre-advice score in [0,1].
	Score float64 `json:"score"`

	// Condition is a human-readable description of the edge's condition,
	// when the workflow author supplied one via edge metadata.
	Condition string `json:"condition,omitempty"`

	// Metadata is the edge's metadata, surfaced verbatim.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Request carries the routing context handed to the advisor.
type Request struct {
	// Node is the node the execution is routing away from.
	Node string `json:"node"`

	// StateSummary is a compact textual summary of the current state.
	StateSummary string `json:"state_summary"`

	// Candidates are the competing edges, in registration order.
	Candidates []Candidate `json:"candidates"`
}

// Recommendation is the advisor's pick.
type Recommendation struct {
	// Target must match one candidate's Target to take effect.
	Target string `json:"target"`

	// Confidence is the advisor's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Reason is a short free-form justification, recorded in trace
	// events but not interpreted.
	Reason string `json:"reason,omitempty"`
}

// Advisor is the external recommendation capability.
//
// Implementations must respect ctx: the router calls Recommend under a
// timeout shorter than the node timeout. Returning an error (or a target
// that matches no candidate) causes the router to fall back to its own
// scores.
type Advisor interface {
	Recommend(ctx context.Context, req Request) (Recommendation, error)
}

// AdvisorFunc adapts a plain function to the Advisor interface.
type AdvisorFunc func(ctx context.Context, req Request) (Recommendation, error)

// Recommend implements Advisor.
func (f AdvisorFunc) Recommend(ctx context.Context, req Request) (Recommendation, error) {
	return f(ctx, req)
}
