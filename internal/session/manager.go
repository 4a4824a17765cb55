package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/blockmind/fastgemini/internal/cache"
	"github.com/blockmind/fastgemini/internal/gemini"
	"github.com/blockmind/fastgemini/pkg/models"
)

// CacheResolver turns a cache config into a cached-content handle. Implemented
// by cache.Manager; a test can substitute a stub.
type CacheResolver interface {
	ResolveHandle(ctx context.Context, cfg cache.Config) (string, error)
}

// BuildParams carries everything needed to assemble one chat turn.
type BuildParams struct {
	// ChatID threads history through storage. Empty means a one-shot chat
	// with no persistence.
	ChatID string

	// Query is the user's message for this turn.
	Query string

	// Model is the target model identifier.
	Model string

	// Tools declares the tool set for the turn. Empty declares none.
	Tools []gemini.ToolSchema

	// ToolMode steers function calling. Ignored (forced to auto) when Tools
	// is empty, since requiring a tool call with nothing to call would wedge
	// the model.
	ToolMode ToolMode

	// Cache optionally references cached content to pin under the turn.
	Cache *cache.Config

	// Context is optional structured data embedded in the initial prompt.
	Context any

	// Files are file references attached after the query.
	Files []models.FileReference
}

// ChatManager is the turn builder: it decides whether a turn starts a fresh
// conversation (composed prompt) or continues one (bare query), and
// assembles the generation config.
type ChatManager struct {
	// SystemPrompt prefixes the first turn of every fresh conversation.
	SystemPrompt string

	// Storage persists history. Nil disables persistence.
	Storage ChatStorage

	// Caches resolves cache configs to handles. Nil means cache references
	// fail as config errors.
	Caches CacheResolver

	// Logger receives build-time logs. Nil disables logging.
	Logger *slog.Logger
}

// NewChatManager wires a turn builder.
func NewChatManager(systemPrompt string, storage ChatStorage, caches CacheResolver, logger *slog.Logger) *ChatManager {
	return &ChatManager{SystemPrompt: systemPrompt, Storage: storage, Caches: caches, Logger: logger}
}

// BuildRequest assembles the initial request for one chat invocation.
//
// A fresh conversation (no stored history, no cache) is seeded with the
// composed prompt. A continuing conversation, or one pinned to cached
// content, gets the bare query appended instead: the framing already lives
// in the history or the cache. Files follow the query in order.
func (m *ChatManager) BuildRequest(ctx context.Context, params BuildParams) (*Request, error) {
	history, err := m.loadHistory(ctx, params.ChatID)
	if err != nil {
		return nil, err
	}

	cacheHandle, err := m.resolveCache(ctx, params.Cache)
	if err != nil {
		return nil, err
	}

	contents := history
	if len(history) == 0 && cacheHandle == "" {
		prompt, err := m.composePrompt(params.Query, params.Context)
		if err != nil {
			return nil, err
		}
		contents = append(contents, models.NewUserQuery(prompt))
	} else {
		contents = append(contents, models.NewUserQuery(params.Query))
	}
	for _, f := range params.Files {
		contents = append(contents, models.NewFile(f))
	}

	config, err := m.buildConfig(params, cacheHandle)
	if err != nil {
		return nil, err
	}

	if m.Logger != nil {
		m.Logger.Debug("request built",
			"chat_id", params.ChatID,
			"model", params.Model,
			"history", len(history),
			"tools", len(params.Tools),
			"cached", cacheHandle != "")
	}
	return &Request{
		ChatID:   params.ChatID,
		Model:    params.Model,
		Contents: contents,
		Config:   config,
	}, nil
}

func (m *ChatManager) loadHistory(ctx context.Context, chatID string) ([]models.Message, error) {
	if m.Storage == nil || chatID == "" {
		return nil, nil
	}
	history, err := m.Storage.GetHistory(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load history for chat %q: %w", chatID, err)
	}
	return history, nil
}

// resolveCache maps a cache reference to a handle. A reference that resolves
// to nothing is a ConfigError: silently generating without the pinned context
// would produce wrong answers.
func (m *ChatManager) resolveCache(ctx context.Context, cfg *cache.Config) (string, error) {
	if cfg == nil {
		return "", nil
	}
	if m.Caches == nil {
		return "", &ConfigError{Message: fmt.Sprintf("cache %q requested but no cache resolver wired", cfg.CacheName)}
	}
	handle, err := m.Caches.ResolveHandle(ctx, *cfg)
	if err != nil {
		return "", &ConfigError{Message: fmt.Sprintf("cache %q could not be resolved", cfg.CacheName), Cause: err}
	}
	if handle == "" {
		return "", &ConfigError{Message: fmt.Sprintf("cache %q resolved to an empty handle", cfg.CacheName)}
	}
	return handle, nil
}

// composePrompt builds the first-turn prompt: system prompt, task framing,
// the query in a tagged block, and optional structured context as JSON.
func (m *ChatManager) composePrompt(query string, initialContext any) (string, error) {
	var b strings.Builder
	if m.SystemPrompt != "" {
		b.WriteString(m.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("CURRENT TASK:\n<user_query>\n")
	b.WriteString(query)
	b.WriteString("\n</user_query>")

	if initialContext != nil {
		data, err := json.Marshal(initialContext)
		if err != nil {
			return "", &ConfigError{Message: "initial context is not serializable", Cause: err}
		}
		b.WriteString("\n\n<initial_context>\n")
		b.Write(data)
		b.WriteString("\n</initial_context>")
	}
	return b.String(), nil
}

func (m *ChatManager) buildConfig(params BuildParams, cacheHandle string) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if cacheHandle != "" {
		config.CachedContent = cacheHandle
	}

	mode := params.ToolMode
	if mode == "" {
		mode = ToolModeAny
	}
	if len(params.Tools) == 0 {
		// Nothing to call: forcing tool use would wedge the model.
		mode = ToolModeAuto
	} else {
		tools, err := gemini.ToTools(params.Tools)
		if err != nil {
			return nil, &ConfigError{Message: "tool declarations invalid", Cause: err}
		}
		config.Tools = tools
	}

	fcMode, err := mode.functionCallingMode()
	if err != nil {
		return nil, &ConfigError{Message: "tool mode invalid", Cause: err}
	}
	config.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: fcMode},
	}
	return config, nil
}
