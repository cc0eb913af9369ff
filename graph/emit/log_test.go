package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func sampleEvent(seq int) Event {
	return Event{
		ID:          "evt_test",
		ExecutionID: "exec_test",
		Seq:         seq,
		Type:        NodeEnter,
		NodeID:      "classify",
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLogEmitter_Text(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)

	t.Run("basic fields", func(t *testing.T) {
		buf.Reset()
		l.Emit(sampleEvent(3))
		line := buf.String()
		for _, want := range []string{"[node_enter]", "execID=exec_test", "seq=3", "nodeID=classify"} {
			if !strings.Contains(line, want) {
				t.Errorf("expected %q in line %q", want, line)
			}
		}
		if !strings.HasSuffix(line, "\n") {
			t.Error("expected newline-terminated output")
		}
	})

	t.Run("message is quoted", func(t *testing.T) {
		buf.Reset()
		ev := sampleEvent(4)
		ev.Msg = "edge a->b chosen"
		l.Emit(ev)
		if !strings.Contains(buf.String(), `msg="edge a->b chosen"`) {
			t.Errorf("expected quoted msg, got %q", buf.String())
		}
	})

	t.Run("metadata renders as JSON", func(t *testing.T) {
		buf.Reset()
		ev := sampleEvent(5)
		ev.Meta = map[string]any{"confidence": 0.85}
		l.Emit(ev)
		if !strings.Contains(buf.String(), `meta={"confidence":0.85}`) {
			t.Errorf("expected meta JSON, got %q", buf.String())
		}
	})
}

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)

	ev := sampleEvent(7)
	ev.Meta = map[string]any{"state_version": 2}
	l.Emit(ev)

	var decoded Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if decoded.ExecutionID != "exec_test" || decoded.Seq != 7 || decoded.Type != NodeEnter {
		t.Errorf("unexpected decoded event: %+v", decoded)
	}
}

func TestLogEmitter_ConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			l.Emit(sampleEvent(seq))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 intact lines, got %d", len(lines))
	}
	for _, line := range lines {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("interleaved write produced invalid JSON: %q", line)
		}
	}
}
