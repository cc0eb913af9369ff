package debug

import (
	"context"
	"fmt"
	"time"

	"github.com/halcyon-ai/agentgraph/graph/emit"
)

// ReplayError indicates a requested trace or position is missing. It is
// surfaced to the caller and never affects any live execution.
type ReplayError struct {
	ExecutionID string
	Reason      string
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s: %s", e.ExecutionID, e.Reason)
}

// Replayer iterates a recorded trace: step forward, jump to a sequence
// number, or play back at variable speed. It replays recorded outcomes
// only and never re-invokes node capabilities or the language model.
type Replayer struct {
	executionID string
	events      []emit.Event
	pos         int
}

// NewReplayer builds a replayer over an execution's recorded trace.
// Returns *ReplayError when the recorder holds no events for the
// execution.
func NewReplayer(recorder *Recorder, executionID string) (*Replayer, error) {
	events := recorder.Events(executionID)
	if len(events) == 0 {
		return nil, &ReplayError{ExecutionID: executionID, Reason: "no recorded trace"}
	}
	return &Replayer{executionID: executionID, events: events}, nil
}

// Len returns the number of recorded events.
func (r *Replayer) Len() int { return len(r.events) }

// Pos returns the index of the next event StepForward will return.
func (r *Replayer) Pos() int { return r.pos }

// Rewind resets playback to the first event.
func (r *Replayer) Rewind() { r.pos = 0 }

// StepForward returns the next recorded event and advances. Returns
// *ReplayError once the trace is exhausted.
func (r *Replayer) StepForward() (emit.Event, error) {
	if r.pos >= len(r.events) {
		return emit.Event{}, &ReplayError{ExecutionID: r.executionID, Reason: "end of trace"}
	}
	event := r.events[r.pos]
	r.pos++
	return event, nil
}

// JumpTo positions playback at the event with the given sequence number.
// Returns *ReplayError when no event carries that sequence.
func (r *Replayer) JumpTo(seq int) error {
	for i, event := range r.events {
		if event.Seq == seq {
			r.pos = i
			return nil
		}
	}
	return &ReplayError{ExecutionID: r.executionID, Reason: fmt.Sprintf("no event with seq %d", seq)}
}

// Play streams the remaining events through fn, pacing inter-event gaps
// by the recorded timestamps scaled with speed (2.0 plays twice as fast;
// 0 or less disables pacing). Honors ctx cancellation between events.
func (r *Replayer) Play(ctx context.Context, speed float64, fn func(emit.Event)) error {
	var prev time.Time
	for r.pos < len(r.events) {
		event := r.events[r.pos]
		if speed > 0 && !prev.IsZero() {
			gap := event.Timestamp.Sub(prev)
			if gap > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(float64(gap) / speed)):
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(event)
		prev = event.Timestamp
		r.pos++
	}
	return nil
}

// Path reconstructs the execution's node-visit sequence from its
// node-enter events, in recorded order.
func (r *Replayer) Path() []string {
	var path []string
	for _, event := range r.events {
		if event.Type == emit.NodeEnter {
			path = append(path, event.NodeID)
		}
	}
	return path
}
