package agent

import (
	"errors"
	"fmt"
)

// ErrToolPanic indicates a tool panicked during execution.
var ErrToolPanic = errors.New("tool panicked")

// UnresolvedToolError reports a model-requested tool name with no match in the
// supplied tool set. Resolution is all-or-nothing, so one unresolved name
// fails the whole batch before anything runs. Never retried.
type UnresolvedToolError struct {
	// Name is the tool name the model asked for.
	Name string
}

func (e *UnresolvedToolError) Error() string {
	return fmt.Sprintf("no tool registered with name %q", e.Name)
}

// ToolExecutionError reports a tool that failed while executing, or whose
// arguments were rejected before execution. It aborts the current chat
// invocation; the loop never retries tools.
type ToolExecutionError struct {
	// ToolName identifies the failing tool.
	ToolName string

	// CallID is the generated ID of the failing call, when known.
	CallID string

	// Cause is the underlying failure.
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.ToolName, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// IsUnresolvedTool reports whether err wraps an UnresolvedToolError.
func IsUnresolvedTool(err error) bool {
	var target *UnresolvedToolError
	return errors.As(err, &target)
}

// IsToolExecution reports whether err wraps a ToolExecutionError.
func IsToolExecution(err error) bool {
	var target *ToolExecutionError
	return errors.As(err, &target)
}
