package gemini

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// ToolSchema is the minimal view of a tool the gateway needs to declare it
// to the model. The agent's Tool interface satisfies it structurally.
type ToolSchema interface {
	Name() string
	Description() string
	Schema() json.RawMessage
}

// ToTools converts tool declarations to the Gemini wire format. Gemini
// accepts several function declarations per tool; keeping one declaration
// per tool keeps error attribution simple.
func ToTools(tools []ToolSchema) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]*genai.Tool, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
		}
		raw := t.Schema()
		if len(raw) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(raw, &schema); err != nil {
				return nil, fmt.Errorf("tool %q: parse schema: %w", t.Name(), err)
			}
			converted, err := toGenaiSchema(schema)
			if err != nil {
				return nil, fmt.Errorf("tool %q: %w", t.Name(), err)
			}
			decl.Parameters = converted
		}
		out = append(out, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{decl},
		})
	}
	return out, nil
}

// toGenaiSchema converts a JSON Schema fragment to the genai schema type.
// Only the subset Gemini understands is mapped; unknown keywords are dropped.
func toGenaiSchema(schema map[string]any) (*genai.Schema, error) {
	out := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		typ, err := toGenaiType(t)
		if err != nil {
			return nil, err
		}
		out.Type = typ
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			sub, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			converted, err := toGenaiSchema(sub)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			out.Properties[name] = converted
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		converted, err := toGenaiSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		out.Items = converted
	}
	if required, ok := schema["required"].([]any); ok {
		for _, v := range required {
			if s, ok := v.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out, nil
}

func toGenaiType(t string) (genai.Type, error) {
	switch t {
	case "string":
		return genai.TypeString, nil
	case "number":
		return genai.TypeNumber, nil
	case "integer":
		return genai.TypeInteger, nil
	case "boolean":
		return genai.TypeBoolean, nil
	case "array":
		return genai.TypeArray, nil
	case "object":
		return genai.TypeObject, nil
	default:
		return genai.TypeUnspecified, fmt.Errorf("unsupported schema type %q", t)
	}
}
