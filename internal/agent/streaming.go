package agent

import (
	"context"
	"errors"
	"sync"
)

// Event is one per-call notification published by a StreamingExecutor.
// Exactly one of Result or Err is set.
type Event struct {
	// Index is the call's position in the originating batch.
	Index int

	// Call is the call the event describes.
	Call ToolCall

	// Result is the call's result payload on success.
	Result map[string]any

	// Err is set when the batch failed; it carries the batch-level error.
	Err error
}

// EventStream is an unbounded queue of execution events with a single
// consumer channel. Publishing never blocks the executor: events land in an
// internal buffer and a pump goroutine feeds them to Events() as the consumer
// keeps up.
type EventStream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Event
	closed bool
	done   chan struct{}
	out    chan Event
}

func newEventStream() *EventStream {
	s := &EventStream{
		done: make(chan struct{}),
		out:  make(chan Event),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Events returns the consumer channel. The channel is single-pass: it yields
// each event once and is closed by Shutdown.
func (s *EventStream) Events() <-chan Event {
	return s.out
}

// Shutdown stops the stream. The consumer channel closes promptly even when
// the consumer has stopped reading; events still buffered are discarded, so
// after Shutdown the stream yields no further events. Safe to call more than
// once, later calls are no-ops.
func (s *EventStream) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Broadcast()
}

// publish appends an event to the buffer. Events published after Shutdown
// are dropped.
func (s *EventStream) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, ev)
	s.cond.Signal()
}

func (s *EventStream) pump() {
	for {
		s.mu.Lock()
		for len(s.buf) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		ev := s.buf[0]
		s.buf = s.buf[1:]
		s.mu.Unlock()

		// done releases a send the consumer never picks up, so Shutdown
		// cannot strand this goroutine.
		select {
		case s.out <- ev:
		case <-s.done:
			close(s.out)
			return
		}
	}
}

// StreamingExecutor wraps another executor and publishes one event per
// completed call while still returning the usual aggregate result. The
// aggregate keeps the positional order invariant; the event stream reports
// in batch order after the wrapped executor finishes, since the wrapped
// strategies gather whole batches.
type StreamingExecutor struct {
	inner  ToolExecutor
	stream *EventStream
}

// NewStreamingExecutor wraps inner with event publication. The caller owns
// the stream lifecycle and must call Shutdown on the returned executor (or
// its stream) when done consuming.
func NewStreamingExecutor(inner ToolExecutor) *StreamingExecutor {
	return &StreamingExecutor{inner: inner, stream: newEventStream()}
}

// Events exposes the consumer channel of the underlying stream.
func (e *StreamingExecutor) Events() <-chan Event {
	return e.stream.Events()
}

// Shutdown closes the event stream exactly once, releasing the pump even
// when nothing is reading Events.
func (e *StreamingExecutor) Shutdown() {
	e.stream.Shutdown()
}

// ExecuteTools delegates to the wrapped executor, then publishes one event
// per result in batch order. On failure a single error event is published
// before the error is returned.
func (e *StreamingExecutor) ExecuteTools(ctx context.Context, calls []ToolCall) (*ToolsExecutionResult, error) {
	res, err := e.inner.ExecuteTools(ctx, calls)
	if err != nil {
		e.stream.publish(Event{Call: failingCall(err, calls), Err: err})
		return nil, err
	}
	for i, r := range res.Results {
		e.stream.publish(Event{Index: i, Call: r.Call, Result: r.Result})
	}
	return res, nil
}

// failingCall recovers the call behind a ToolExecutionError for the event
// payload. Returns a zero ToolCall when the error carries no call identity.
func failingCall(err error, calls []ToolCall) ToolCall {
	var execErr *ToolExecutionError
	if !errors.As(err, &execErr) {
		return ToolCall{}
	}
	for _, c := range calls {
		if c.ID == execErr.CallID {
			return c
		}
	}
	return ToolCall{}
}
