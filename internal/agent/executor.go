package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ConcurrentExecutor runs every call in the batch at once and assembles
// results positionally, so result order always matches call order no matter
// which goroutine finishes first. Any single failure aborts the batch.
type ConcurrentExecutor struct {
	logger *slog.Logger
}

// NewConcurrentExecutor builds the default executor. A nil logger disables
// execution logging.
func NewConcurrentExecutor(logger *slog.Logger) *ConcurrentExecutor {
	return &ConcurrentExecutor{logger: logger}
}

// ExecuteTools fans the batch out over goroutines and waits for all of them.
// The whole batch is gathered even when one call fails early; the first
// failure in batch order is then reported as a ToolExecutionError.
func (e *ConcurrentExecutor) ExecuteTools(ctx context.Context, calls []ToolCall) (*ToolsExecutionResult, error) {
	results, err := gatherCalls(ctx, calls, e.logger)
	if err != nil {
		return nil, err
	}
	return &ToolsExecutionResult{Results: results, ShouldProceed: true}, nil
}

// gatherCalls is the shared fan-out primitive used by both the concurrent and
// the rate-limited executor. Slot i of the returned slice belongs to calls[i].
func gatherCalls(ctx context.Context, calls []ToolCall, logger *slog.Logger) ([]ToolCallResult, error) {
	results := make([]ToolCallResult, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc ToolCall) {
			defer wg.Done()
			out, err := runTool(ctx, tc, logger)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = ToolCallResult{Call: tc, Result: out}
		}(i, call)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if logger != nil {
			logger.Error("tool execution failed",
				"tool", calls[i].Name,
				"call_id", calls[i].ID,
				"error", err)
		}
		return nil, &ToolExecutionError{ToolName: calls[i].Name, CallID: calls[i].ID, Cause: err}
	}
	return results, nil
}

// runTool executes a single call with panic recovery, so a misbehaving tool
// surfaces as an error instead of tearing down the executor goroutine.
func runTool(ctx context.Context, call ToolCall, logger *slog.Logger) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrToolPanic, r)
		}
	}()

	start := time.Now()
	result, err = call.Tool.Execute(ctx, call.Args)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Debug("tool executed",
			"tool", call.Name,
			"call_id", call.ID,
			"duration", time.Since(start))
	}
	return result, nil
}
