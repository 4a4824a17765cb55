// Package session builds generate-content requests from chat state: it owns
// prompt composition, history threading, tool declaration, and cache handle
// resolution. Storage backends live here too.
package session

import (
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/blockmind/fastgemini/pkg/models"
)

// ToolMode selects how strongly the model is steered toward tool use.
type ToolMode string

const (
	// ToolModeAny requires the model to call a tool when tools are declared.
	ToolModeAny ToolMode = "any"

	// ToolModeAuto lets the model decide between text and tool calls.
	ToolModeAuto ToolMode = "auto"
)

// functionCallingMode maps a ToolMode to the wire enum.
func (m ToolMode) functionCallingMode() (genai.FunctionCallingConfigMode, error) {
	switch m {
	case ToolModeAny:
		return genai.FunctionCallingConfigModeAny, nil
	case ToolModeAuto:
		return genai.FunctionCallingConfigModeAuto, nil
	default:
		return genai.FunctionCallingConfigModeUnspecified, fmt.Errorf("unknown tool mode %q", m)
	}
}

// Request is one fully assembled model turn: the conversation to send plus
// the generation config. The orchestration loop appends folded tool rounds
// to Contents between model calls.
type Request struct {
	// ChatID identifies the conversation for persistence.
	ChatID string

	// Model is the model identifier the request targets.
	Model string

	// Contents is the conversation in order.
	Contents []models.Message

	// Config carries tools, tool mode, and the cached-content handle.
	Config *genai.GenerateContentConfig
}

// ConfigError reports invalid wiring of a chat request, like a cache
// reference that resolves to nothing. Never retried.
type ConfigError struct {
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
