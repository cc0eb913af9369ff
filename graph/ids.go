package graph

import (
	"fmt"
	"math/rand"
	"time"

	"go.jetify.com/typeid"
)

// NewExecutionID generates a unique, sortable execution identifier with
// the "exec" prefix.
func NewExecutionID() string {
	id, err := typeid.WithPrefix("exec")
	if err != nil {
		// typeid only fails on invalid prefixes; fall back to a
		// timestamp-based ID rather than aborting the execution.
		return fmt.Sprintf("exec_%d_%04d", time.Now().UnixNano(), rand.Intn(10000)) // #nosec G404 -- uniqueness fallback, not security
	}
	return id.String()
}

// NewCheckpointID generates a unique checkpoint identifier with the
// "ckpt" prefix.
func NewCheckpointID() string {
	id, err := typeid.WithPrefix("ckpt")
	if err != nil {
		return fmt.Sprintf("ckpt_%d_%04d", time.Now().UnixNano(), rand.Intn(10000)) // #nosec G404 -- uniqueness fallback, not security
	}
	return id.String()
}

// NewEventID generates a unique trace event identifier with the "evt"
// prefix.
func NewEventID() string {
	id, err := typeid.WithPrefix("evt")
	if err != nil {
		return fmt.Sprintf("evt_%d_%04d", time.Now().UnixNano(), rand.Intn(10000)) // #nosec G404 -- uniqueness fallback, not security
	}
	return id.String()
}
