package agent

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// DefaultMaxBatchSize caps how many calls a RateLimitedExecutor runs at once.
const DefaultMaxBatchSize = 4

// RateLimitedExecutor processes the batch in sequential fixed-size chunks.
// Calls inside a chunk run concurrently; chunks run one after another, each
// optionally gated by a rate limiter. Useful when tools hit quota-bound
// backends that a full fan-out would trip.
type RateLimitedExecutor struct {
	maxBatchSize int
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// NewRateLimitedExecutor builds a chunked executor. Sizes below 1 fall back
// to DefaultMaxBatchSize. A nil limiter disables pacing; chunks then run
// back to back.
func NewRateLimitedExecutor(maxBatchSize int, limiter *rate.Limiter, logger *slog.Logger) *RateLimitedExecutor {
	if maxBatchSize < 1 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &RateLimitedExecutor{maxBatchSize: maxBatchSize, limiter: limiter, logger: logger}
}

// ExecuteTools runs the calls chunk by chunk, preserving input order across
// chunk boundaries. The first failing chunk aborts the batch; later chunks
// never start.
func (e *RateLimitedExecutor) ExecuteTools(ctx context.Context, calls []ToolCall) (*ToolsExecutionResult, error) {
	results := make([]ToolCallResult, 0, len(calls))
	for start := 0; start < len(calls); start += e.maxBatchSize {
		end := start + e.maxBatchSize
		if end > len(calls) {
			end = len(calls)
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if e.logger != nil {
			e.logger.Debug("executing tool chunk", "from", start, "to", end, "total", len(calls))
		}
		chunk, err := gatherCalls(ctx, calls[start:end], e.logger)
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return &ToolsExecutionResult{Results: results, ShouldProceed: true}, nil
}
