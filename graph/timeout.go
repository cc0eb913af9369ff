package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// nodeTimeout determines the timeout for a node based on precedence:
//  1. per-node override from the workflow builder
//  2. engine-wide default
//  3. 0 (no timeout, unlimited execution)
func nodeTimeout(override, defaultTimeout time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// runNodeWithTimeout executes a node, enforcing the resolved timeout.
//
// The node runs in its own goroutine so a capability that ignores context
// cancellation cannot stall the engine past its deadline. When the timeout
// fires the node's eventual result is discarded and the error wraps
// ErrNodeTimeout.
func runNodeWithTimeout(ctx context.Context, node Node, nodeID string, state *State, timeout time.Duration) (*State, error) {
	if timeout <= 0 {
		out, err := node.Process(ctx, state)
		if err != nil {
			return nil, &NodeError{NodeID: nodeID, Err: err}
		}
		return out, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		state *State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		out, err := node.Process(timeoutCtx, state)
		done <- result{state: out, err: err}
	}()

	select {
	case <-timeoutCtx.Done():
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return nil, &NodeError{
				NodeID: nodeID,
				Err:    fmt.Errorf("%w: exceeded %v", ErrNodeTimeout, timeout),
			}
		}
		return nil, timeoutCtx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, &NodeError{NodeID: nodeID, Err: res.err}
		}
		return res.state, nil
	}
}
