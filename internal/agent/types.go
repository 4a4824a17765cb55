// Package agent implements the agentic tool-calling loop: the bounded
// iterative protocol that sends a conversation to Gemini, executes the tool
// calls the model requests, folds results back into the conversation, and
// streams text to the caller.
package agent

import (
	"context"
	"encoding/json"
)

// Tool is a named, schema-described unit of work the model can invoke.
//
// Implementations must be safe for concurrent use: the executor may run many
// calls of the same tool at once, and independent Chat invocations may share
// one tool set. Tools are owned by the caller; the loop borrows them for the
// duration of a single Chat call.
type Tool interface {
	// Name returns the tool name used for function calling. Matching is
	// exact; the resolver never fuzzy-matches.
	Name() string

	// Description returns a natural language description of what the tool
	// does, passed to the model alongside the schema.
	Description() string

	// Schema returns the JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the arguments the model supplied and
	// returns a structured result mapping. Errors propagate as-is; the
	// executor never retries or converts them.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolCall pairs a resolved Tool with the raw arguments the model supplied
// for one invocation. Never mutated after creation.
type ToolCall struct {
	// ID identifies the call within a batch. Gemini does not assign call
	// IDs, so the resolver generates them.
	ID string

	// Tool is the resolved tool instance.
	Tool Tool

	// Name is the tool name as requested by the model.
	Name string

	// Args are the raw arguments from the model's function-call part.
	Args map[string]any
}

// ToolCallResult pairs the originating call with its produced result payload.
type ToolCallResult struct {
	Call   ToolCall
	Result map[string]any
}

// ToolsExecutionResult is the batch-level outcome of one executor invocation.
//
// Results preserves the cardinality and order of the input call sequence:
// position i of the input corresponds to position i of Results, regardless of
// completion order.
type ToolsExecutionResult struct {
	// Results holds one entry per input call, in input order.
	Results []ToolCallResult

	// ShouldProceed signals whether the orchestration loop may continue to
	// the next model round. A false value ends the loop like a normal
	// completion, not an error.
	ShouldProceed bool
}

// ToolExecutor runs a batch of resolved tool calls. Strategies are swappable
// at the orchestration-loop boundary; all of them honor the ordering
// invariant of ToolsExecutionResult.
type ToolExecutor interface {
	ExecuteTools(ctx context.Context, calls []ToolCall) (*ToolsExecutionResult, error)
}
