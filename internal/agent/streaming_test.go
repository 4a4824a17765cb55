package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// receiveEvents reads exactly n events from ch, failing on close or timeout.
func receiveEvents(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d events", len(out), n)
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

// collectEvents drains ch until it closes, failing if it never does.
func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for event channel to close")
		}
	}
}

func TestStreamingExecutorPublishesResultsInOrder(t *testing.T) {
	const n = 5
	calls := make([]ToolCall, n)
	for i := range n {
		tool := &stubTool{
			name:   fmt.Sprintf("tool-%d", i),
			result: map[string]any{"index": i},
			delay:  time.Duration(n-i) * 3 * time.Millisecond,
		}
		calls[i] = callFor(tool, fmt.Sprintf("tool-%d-id", i), nil)
	}

	exec := NewStreamingExecutor(NewConcurrentExecutor(nil))
	res, err := exec.ExecuteTools(context.Background(), calls)
	if err != nil {
		t.Fatalf("ExecuteTools: %v", err)
	}
	if len(res.Results) != n {
		t.Fatalf("expected %d results, got %d", n, len(res.Results))
	}

	events := receiveEvents(t, exec.Events(), n)
	for i, ev := range events {
		if ev.Index != i {
			t.Errorf("event %d has index %d", i, ev.Index)
		}
		if ev.Err != nil {
			t.Errorf("event %d carries error %v", i, ev.Err)
		}
		if ev.Result["index"] != i {
			t.Errorf("event %d has payload %v", i, ev.Result)
		}
	}

	exec.Shutdown()
	if rest := collectEvents(t, exec.Events()); len(rest) != 0 {
		t.Errorf("expected no events after shutdown, got %d", len(rest))
	}
}

func TestStreamingExecutorShutdownReleasesUnreadStream(t *testing.T) {
	calls := []ToolCall{
		callFor(&stubTool{name: "a", result: map[string]any{"v": 1}}, "a-1", nil),
		callFor(&stubTool{name: "b", result: map[string]any{"v": 2}}, "b-1", nil),
	}

	exec := NewStreamingExecutor(NewConcurrentExecutor(nil))
	if _, err := exec.ExecuteTools(context.Background(), calls); err != nil {
		t.Fatalf("ExecuteTools: %v", err)
	}

	// Nothing ever read from Events. Shutdown must still close the channel
	// instead of leaving the pump stuck on its send.
	exec.Shutdown()
	events := collectEvents(t, exec.Events())

	// At most the one event already handed to the pump may slip through.
	if len(events) > 1 {
		t.Errorf("expected the unread buffer to be discarded, got %d events", len(events))
	}
}

func TestStreamingExecutorShutdownIsIdempotent(t *testing.T) {
	exec := NewStreamingExecutor(NewConcurrentExecutor(nil))
	exec.Shutdown()
	exec.Shutdown()
	exec.Shutdown()

	if events := collectEvents(t, exec.Events()); len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestStreamingExecutorPublishesErrorEvent(t *testing.T) {
	boom := errors.New("boom")
	calls := []ToolCall{callFor(&stubTool{name: "bad", err: boom}, "bad-1", nil)}

	exec := NewStreamingExecutor(NewConcurrentExecutor(nil))
	_, err := exec.ExecuteTools(context.Background(), calls)
	if err == nil {
		t.Fatal("expected error")
	}

	events := receiveEvents(t, exec.Events(), 1)
	if !errors.Is(events[0].Err, boom) {
		t.Errorf("error event does not carry cause: %v", events[0].Err)
	}
	if events[0].Call.ID != "bad-1" {
		t.Errorf("error event not attributed to failing call: %q", events[0].Call.ID)
	}

	exec.Shutdown()
	if rest := collectEvents(t, exec.Events()); len(rest) != 0 {
		t.Errorf("expected no events after shutdown, got %d", len(rest))
	}
}

func TestEventStreamDropsPublishAfterShutdown(t *testing.T) {
	s := newEventStream()
	s.Shutdown()
	s.publish(Event{Index: 1})

	if events := collectEvents(t, s.Events()); len(events) != 0 {
		t.Errorf("event published after shutdown was delivered")
	}
}
