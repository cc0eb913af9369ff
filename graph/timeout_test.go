package graph

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNodeTimeout_Precedence(t *testing.T) {
	tests := []struct {
		name           string
		override       time.Duration
		defaultTimeout time.Duration
		want           time.Duration
	}{
		{"override wins", 5 * time.Second, 30 * time.Second, 5 * time.Second},
		{"default when no override", 0, 30 * time.Second, 30 * time.Second},
		{"zero when neither set", 0, 0, 0},
		{"negative override ignored", -1 * time.Second, 30 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nodeTimeout(tt.override, tt.defaultTimeout); got != tt.want {
				t.Errorf("nodeTimeout(%v, %v) = %v, want %v", tt.override, tt.defaultTimeout, got, tt.want)
			}
		})
	}
}

func TestRunNodeWithTimeout(t *testing.T) {
	t.Run("fast node completes under timeout", func(t *testing.T) {
		node := NodeFunc(func(ctx context.Context, s *State) (*State, error) {
			out, err := s.Derive()
			if err != nil {
				return nil, err
			}
			out.Set("done", true)
			return out, nil
		})
		state := NewState("exec-1", nil)

		out, err := runNodeWithTimeout(context.Background(), node, "fast", state, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v, _ := out.Get("done"); v != true {
			t.Error("node result lost")
		}
	})

	t.Run("slow node hits deadline", func(t *testing.T) {
		node := NodeFunc(func(ctx context.Context, s *State) (*State, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return s, nil
			}
		})
		state := NewState("exec-1", nil)

		_, err := runNodeWithTimeout(context.Background(), node, "slow", state, 20*time.Millisecond)
		if !errors.Is(err, ErrNodeTimeout) {
			t.Fatalf("error = %v, want ErrNodeTimeout", err)
		}

		var nodeErr *NodeError
		if !errors.As(err, &nodeErr) {
			t.Fatal("timeout should be wrapped in NodeError")
		}
		if nodeErr.NodeID != "slow" {
			t.Errorf("NodeID = %q, want %q", nodeErr.NodeID, "slow")
		}
	})

	t.Run("node ignoring context still bounded", func(t *testing.T) {
		node := NodeFunc(func(ctx context.Context, s *State) (*State, error) {
			time.Sleep(5 * time.Second)
			return s, nil
		})
		state := NewState("exec-1", nil)

		start := time.Now()
		_, err := runNodeWithTimeout(context.Background(), node, "stubborn", state, 20*time.Millisecond)
		if !errors.Is(err, ErrNodeTimeout) {
			t.Fatalf("error = %v, want ErrNodeTimeout", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("timeout not enforced: returned after %v", elapsed)
		}
	})

	t.Run("zero timeout runs unlimited", func(t *testing.T) {
		node := NodeFunc(func(ctx context.Context, s *State) (*State, error) {
			return s, nil
		})
		state := NewState("exec-1", nil)

		if _, err := runNodeWithTimeout(context.Background(), node, "n", state, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("node error wrapped in NodeError", func(t *testing.T) {
		boom := errors.New("capability exploded")
		node := NodeFunc(func(ctx context.Context, s *State) (*State, error) {
			return nil, boom
		})
		state := NewState("exec-1", nil)

		_, err := runNodeWithTimeout(context.Background(), node, "broken", state, time.Second)
		var nodeErr *NodeError
		if !errors.As(err, &nodeErr) {
			t.Fatalf("error = %v, want NodeError", err)
		}
		if nodeErr.NodeID != "broken" {
			t.Errorf("NodeID = %q, want %q", nodeErr.NodeID, "broken")
		}
		if !errors.Is(err, boom) {
			t.Error("original error should be reachable via errors.Is")
		}
	})

	t.Run("parent cancellation surfaces as Canceled", func(t *testing.T) {
		node := NodeFunc(func(ctx context.Context, s *State) (*State, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		state := NewState("exec-1", nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := runNodeWithTimeout(ctx, node, "n", state, time.Minute)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}
