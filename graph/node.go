package graph

import "context"

// Node is one processing step in the workflow graph.
//
// A node receives the execution's current State and returns the next
// State, typically a Derive()d child with new working values. The
// capability is opaque to the engine: it may call a language model, invoke
// a tool, or run pure computation. Implementations must respect ctx
// cancellation, because the engine enforces per-node timeouts through it.
type Node interface {
	// Process runs the node's capability against the given state.
	Process(ctx context.Context, state *State) (*State, error)
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	greet := graph.NodeFunc(func(ctx context.Context, s *graph.State) (*graph.State, error) {
//	    next, err := s.Derive()
//	    if err != nil {
//	        return nil, err
//	    }
//	    next.Set("greeting", "hello")
//	    return next, nil
//	})
type NodeFunc func(ctx context.Context, state *State) (*State, error)

// Process implements Node.
func (f NodeFunc) Process(ctx context.Context, state *State) (*State, error) {
	return f(ctx, state)
}

// NodeError wraps a failure from a node capability with the node that
// produced it. The engine records it into state metadata before the
// execution is marked FAILED, so failed executions stay inspectable.
type NodeError struct {
	// NodeID identifies the failing node.
	NodeID string

	// Err is the underlying capability error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return "node " + e.NodeID + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *NodeError) Unwrap() error { return e.Err }
