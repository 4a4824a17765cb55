// Package models defines the conversation data model shared by the agent
// loop, the session layer, and storage backends.
package models

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// Role indicates the message author side.
type Role string

const (
	// RoleUser marks messages originating from the caller.
	RoleUser Role = "user"

	// RoleModel marks messages originating from the model, including the
	// function-call/function-result pairs folded back during tool rounds.
	RoleModel Role = "model"
)

// MessageKind discriminates the message content union.
type MessageKind string

const (
	// KindUserQuery is plain user text.
	KindUserQuery MessageKind = "user_query"

	// KindModelText is plain assistant text.
	KindModelText MessageKind = "model_text"

	// KindFunctionCall is a tool invocation requested by the model.
	KindFunctionCall MessageKind = "function_call"

	// KindFunctionResult is the result of an executed tool invocation.
	KindFunctionResult MessageKind = "function_result"

	// KindFile is a file reference attached to the conversation.
	KindFile MessageKind = "file"
)

// FileReference points at a file already uploaded to the Gemini file API.
type FileReference struct {
	// URI is the file resource URI.
	URI string `json:"uri"`

	// MimeType is the MIME type of the referenced file.
	MimeType string `json:"mime_type"`
}

// Message is one turn element in a conversation: a tagged union over user
// text, a tool-call request, a tool-call result, and a file reference.
//
// A function-call message is always immediately followed by its matching
// function-result message within the same round, so the model never sees a
// dangling call.
type Message struct {
	Role Role        `json:"role"`
	Kind MessageKind `json:"kind"`

	// Query is set for user-query and model-text messages.
	Query string `json:"query,omitempty"`

	// ToolName is set for function-call and function-result messages.
	ToolName string `json:"tool_name,omitempty"`

	// ToolArgs is set when Kind == KindFunctionCall.
	ToolArgs map[string]any `json:"tool_args,omitempty"`

	// ToolResult is set when Kind == KindFunctionResult.
	ToolResult map[string]any `json:"tool_result,omitempty"`

	// File is set when Kind == KindFile.
	File *FileReference `json:"file,omitempty"`
}

// NewUserQuery builds a user-role text message.
func NewUserQuery(query string) Message {
	return Message{Role: RoleUser, Kind: KindUserQuery, Query: query}
}

// NewModelText builds a model-role text message.
func NewModelText(text string) Message {
	return Message{Role: RoleModel, Kind: KindModelText, Query: text}
}

// NewFunctionCall builds a model-role tool-call request message.
func NewFunctionCall(toolName string, toolArgs map[string]any) Message {
	return Message{Role: RoleModel, Kind: KindFunctionCall, ToolName: toolName, ToolArgs: toolArgs}
}

// NewFunctionResult builds a model-role tool-call result message.
func NewFunctionResult(toolName string, toolResult map[string]any) Message {
	return Message{Role: RoleModel, Kind: KindFunctionResult, ToolName: toolName, ToolResult: toolResult}
}

// NewFile builds a user-role file reference message.
func NewFile(file FileReference) Message {
	return Message{Role: RoleUser, Kind: KindFile, File: &file}
}

// ToContent converts the message to the Gemini wire format. The switch is
// exhaustive over MessageKind; an unknown kind is a programming error and is
// reported rather than silently dropped.
func (m Message) ToContent() (*genai.Content, error) {
	switch m.Kind {
	case KindUserQuery, KindModelText:
		return &genai.Content{
			Role:  string(m.Role),
			Parts: []*genai.Part{{Text: m.Query}},
		}, nil
	case KindFunctionCall:
		return &genai.Content{
			Role: string(m.Role),
			Parts: []*genai.Part{{
				FunctionCall: &genai.FunctionCall{
					Name: m.ToolName,
					Args: m.ToolArgs,
				},
			}},
		}, nil
	case KindFunctionResult:
		return &genai.Content{
			Role: string(m.Role),
			Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name:     m.ToolName,
					Response: map[string]any{"result": m.ToolResult},
				},
			}},
		}, nil
	case KindFile:
		if m.File == nil {
			return nil, fmt.Errorf("models: file message without file reference")
		}
		return &genai.Content{
			Role: string(m.Role),
			Parts: []*genai.Part{{
				FileData: &genai.FileData{
					FileURI:  m.File.URI,
					MIMEType: m.File.MimeType,
				},
			}},
		}, nil
	default:
		return nil, fmt.Errorf("models: unknown message kind %q", m.Kind)
	}
}

// ToContents converts a message slice to the Gemini wire format, preserving
// order.
func ToContents(messages []Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for i, m := range messages {
		c, err := m.ToContent()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		contents = append(contents, c)
	}
	return contents, nil
}

// Clone returns a deep copy of the message, so storage reads stay independent
// from the loop's in-memory mutation.
func (m Message) Clone() Message {
	out := m
	out.ToolArgs = cloneMap(m.ToolArgs)
	out.ToolResult = cloneMap(m.ToolResult)
	if m.File != nil {
		f := *m.File
		out.File = &f
	}
	return out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	// Tool args and results are JSON-shaped by contract, so a JSON round
	// trip copies nested maps and slices losslessly.
	data, err := json.Marshal(in)
	if err != nil {
		shallow := make(map[string]any, len(in))
		for k, v := range in {
			shallow[k] = v
		}
		return shallow
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return in
	}
	return out
}
