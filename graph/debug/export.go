package debug

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/halcyon-ai/agentgraph/graph/emit"
)

// Exporter renders a recorded trace in analysis-friendly formats: the
// plain event list, a tabular form, and a timeline JSON consumable by
// common trace visualizers.
type Exporter struct {
	events []emit.Event
}

// NewExporter creates an exporter over a copy of the given events.
func NewExporter(events []emit.Event) *Exporter {
	copied := make([]emit.Event, len(events))
	copy(copied, events)
	return &Exporter{events: copied}
}

// ExportTrace is a convenience constructor over a recorder's trace.
func ExportTrace(recorder *Recorder, executionID string) *Exporter {
	return &Exporter{events: recorder.Events(executionID)}
}

// Events returns the plain event list in recorded order.
func (e *Exporter) Events() []emit.Event {
	out := make([]emit.Event, len(e.events))
	copy(out, e.events)
	return out
}

// Table renders the trace as rows of (EventID, Type, NodeID, Timestamp,
// Seq), with a header row first.
func (e *Exporter) Table() [][]string {
	rows := make([][]string, 0, len(e.events)+1)
	rows = append(rows, []string{"EventID", "Type", "NodeID", "Timestamp", "Seq"})
	for _, event := range e.events {
		rows = append(rows, []string{
			event.ID,
			string(event.Type),
			event.NodeID,
			event.Timestamp.Format(time.RFC3339Nano),
			fmt.Sprintf("%d", event.Seq),
		})
	}
	return rows
}

// chromeTraceEvent is one entry in the trace-event JSON format understood
// by chrome://tracing, Perfetto, and similar viewers.
type chromeTraceEvent struct {
	Name  string         `json:"name"`
	Phase string         `json:"ph"`
	TS    int64          `json:"ts"`  // microseconds
	Dur   int64          `json:"dur"` // microseconds, complete events only
	PID   int            `json:"pid"`
	TID   int            `json:"tid"`
	Args  map[string]any `json:"args,omitempty"`
}

// ChromeTrace renders the trace in the trace-event JSON format. Node
// enter/exit pairs become complete ("X") duration events; everything else
// becomes an instant ("i") event. Timestamps are relative to the first
// recorded event.
func (e *Exporter) ChromeTrace() ([]byte, error) {
	if len(e.events) == 0 {
		return json.Marshal([]chromeTraceEvent{})
	}

	origin := e.events[0].Timestamp
	var out []chromeTraceEvent
	open := make(map[string]emit.Event) // nodeID -> pending enter

	for _, event := range e.events {
		ts := event.Timestamp.Sub(origin).Microseconds()
		switch event.Type {
		case emit.NodeEnter:
			open[event.NodeID] = event
		case emit.NodeExit, emit.NodeError:
			if enter, ok := open[event.NodeID]; ok {
				delete(open, event.NodeID)
				start := enter.Timestamp.Sub(origin).Microseconds()
				out = append(out, chromeTraceEvent{
					Name:  event.NodeID,
					Phase: "X",
					TS:    start,
					Dur:   ts - start,
					PID:   1,
					TID:   1,
					Args:  event.Meta,
				})
				continue
			}
			out = append(out, chromeTraceEvent{
				Name: string(event.Type), Phase: "i", TS: ts, PID: 1, TID: 1, Args: event.Meta,
			})
		default:
			out = append(out, chromeTraceEvent{
				Name: string(event.Type), Phase: "i", TS: ts, PID: 1, TID: 1, Args: event.Meta,
			})
		}
	}

	// Enters without a matching exit (cancelled mid-node) still show up.
	for nodeID, enter := range open {
		out = append(out, chromeTraceEvent{
			Name:  nodeID,
			Phase: "i",
			TS:    enter.Timestamp.Sub(origin).Microseconds(),
			PID:   1,
			TID:   1,
			Args:  enter.Meta,
		})
	}

	return json.Marshal(out)
}
