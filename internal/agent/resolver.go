package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"
)

// resolver matches model-requested function calls against a tool set and
// validates their arguments before anything executes. Matching is exact name
// equality and all-or-nothing: a single unresolved call or invalid argument
// payload fails the whole batch, so the executor never sees a partially
// resolvable round.
type resolver struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

func newResolver() *resolver {
	return &resolver{schemas: make(map[string]*jsonschema.Schema)}
}

// Resolve maps each function call to a ToolCall with a generated ID. Gemini
// does not assign call IDs, so IDs are minted here from the tool name plus a
// UUID suffix.
func (r *resolver) Resolve(calls []*genai.FunctionCall, tools []Tool) ([]ToolCall, error) {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}

	resolved := make([]ToolCall, 0, len(calls))
	for _, fc := range calls {
		tool, ok := byName[fc.Name]
		if !ok {
			return nil, &UnresolvedToolError{Name: fc.Name}
		}
		call := ToolCall{
			ID:   fc.Name + "-" + uuid.NewString(),
			Tool: tool,
			Name: fc.Name,
			Args: fc.Args,
		}
		if err := r.validateArgs(tool, call.Args); err != nil {
			return nil, &ToolExecutionError{ToolName: fc.Name, CallID: call.ID, Cause: err}
		}
		resolved = append(resolved, call)
	}
	return resolved, nil
}

// validateArgs checks the call arguments against the tool's JSON schema.
// Tools with no schema accept anything.
func (r *resolver) validateArgs(tool Tool, args map[string]any) error {
	raw := tool.Schema()
	if len(raw) == 0 {
		return nil
	}
	schema, err := r.compiled(tool.Name(), raw)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// Normalize through JSON so non-JSON value types (ints, custom maps)
	// compare the way the validator expects.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (r *resolver) compiled(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schemas[name]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	url := "tool://" + name + "/schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	r.schemas[name] = s
	return s, nil
}
