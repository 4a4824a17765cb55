package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/blockmind/fastgemini/internal/cache"
	"github.com/blockmind/fastgemini/internal/gemini"
	"github.com/blockmind/fastgemini/internal/observability"
	"github.com/blockmind/fastgemini/internal/session"
	"github.com/blockmind/fastgemini/pkg/models"
)

const (
	// DefaultMaxIterations bounds the tool rounds per chat invocation.
	DefaultMaxIterations = 10

	// DefaultRetries is the gateway retry budget per model call.
	DefaultRetries = 1

	// MaxIterationsMessage is the single sentinel chunk emitted when the
	// iteration cap runs out with tool calls still pending.
	MaxIterationsMessage = "Maximum tool iterations reached."

	// chunkBufferSize decouples the loop from slow consumers for short
	// bursts; a stalled consumer eventually backpressures the loop.
	chunkBufferSize = 16
)

// Gateway is the loop's seam to the model endpoint. *gemini.Gateway
// implements it; tests substitute fakes.
type Gateway interface {
	Generate(ctx context.Context, model string, messages []models.Message, config *genai.GenerateContentConfig, retries int) (*gemini.Response, error)
}

// Chunk is one streamed unit of a chat: a text fragment or, terminally, an
// error. Text already delivered stays valid even when a later chunk carries
// an error.
type Chunk struct {
	Text string
	Err  error
}

// ChatRequest configures one chat invocation.
type ChatRequest struct {
	// ChatID threads the conversation through storage. Empty disables
	// persistence for this invocation.
	ChatID string

	// Query is the user's message.
	Query string

	// Model is the model identifier.
	Model string

	// Tools is the tool set offered to the model for this invocation.
	Tools []Tool

	// Executor runs resolved tool batches. Nil selects a ConcurrentExecutor.
	Executor ToolExecutor

	// MaxIterations caps model rounds. Values below 1 mean
	// DefaultMaxIterations.
	MaxIterations int

	// Retries is the per-model-call retry budget. Values below 1 mean
	// DefaultRetries; the gateway treats negatives as zero.
	Retries int

	// ToolMode steers function calling; empty means "any". Forced to auto
	// when Tools is empty.
	ToolMode session.ToolMode

	// Cache optionally pins cached content under the conversation.
	Cache *cache.Config

	// Context is optional structured data embedded in a fresh conversation's
	// first prompt.
	Context any

	// Files are file references attached after the query.
	Files []models.FileReference
}

func (r *ChatRequest) sanitize() {
	if r.MaxIterations < 1 {
		r.MaxIterations = DefaultMaxIterations
	}
	if r.Retries < 1 {
		r.Retries = DefaultRetries
	}
	if r.ToolMode == "" {
		r.ToolMode = session.ToolModeAny
	}
}

// Client runs the agentic loop: model call, tool execution, fold, repeat,
// bounded by the iteration cap.
type Client struct {
	gateway Gateway
	manager *session.ChatManager
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient wires a loop client. manager must be non-nil; logger and metrics
// may be nil.
func NewClient(gateway Gateway, manager *session.ChatManager, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{gateway: gateway, manager: manager, logger: logger, metrics: metrics}
}

// Chat starts one chat invocation and returns its chunk stream. The stream
// is finite and single-pass: the channel closes when the invocation
// completes, errors, or hits the iteration cap. Construction failures are
// returned directly; failures after the first chunk arrive on the stream.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	if req.Query == "" {
		return nil, errors.New("agent: query is required")
	}
	if req.Model == "" {
		return nil, errors.New("agent: model is required")
	}
	req.sanitize()
	if req.Executor == nil {
		req.Executor = NewConcurrentExecutor(c.logger)
	}

	chunks := make(chan Chunk, chunkBufferSize)
	go c.run(ctx, req, chunks)
	return chunks, nil
}

func (c *Client) run(ctx context.Context, req ChatRequest, chunks chan<- Chunk) {
	defer close(chunks)

	emit := func(chunk Chunk) bool {
		select {
		case chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	toolSchemas := make([]gemini.ToolSchema, len(req.Tools))
	for i, t := range req.Tools {
		toolSchemas[i] = t
	}
	request, err := c.manager.BuildRequest(ctx, session.BuildParams{
		ChatID:   req.ChatID,
		Query:    req.Query,
		Model:    req.Model,
		Tools:    toolSchemas,
		ToolMode: req.ToolMode,
		Cache:    req.Cache,
		Context:  req.Context,
		Files:    req.Files,
	})
	if err != nil {
		emit(Chunk{Err: err})
		return
	}

	res := newResolver()
	rounds := 0
	exhausted := true

	for iteration := 0; iteration < req.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			emit(Chunk{Err: ctx.Err()})
			return
		default:
		}

		rounds++
		resp, err := c.gateway.Generate(ctx, request.Model, request.Contents, request.Config, req.Retries)
		if err != nil {
			emit(Chunk{Err: err})
			return
		}

		// Text always streams before this round's tools run, so partial
		// answers reach the caller even if a tool later fails.
		for _, text := range resp.Texts() {
			if !emit(Chunk{Text: text}) {
				return
			}
		}

		if !resp.HasFunctionCalls() {
			exhausted = false
			break
		}

		calls, err := res.Resolve(resp.FunctionCalls(), req.Tools)
		if err != nil {
			emit(Chunk{Err: err})
			return
		}

		if c.logger != nil {
			c.logger.Debug("executing tool round",
				"chat_id", req.ChatID,
				"iteration", iteration,
				"calls", len(calls))
		}
		started := time.Now()
		execRes, err := req.Executor.ExecuteTools(ctx, calls)
		if err != nil {
			c.metrics.ToolFailure()
			emit(Chunk{Err: err})
			return
		}
		c.metrics.ToolBatch(len(calls), time.Since(started))

		// Fold the round back as call/result pairs so the next model turn
		// sees every invocation adjacent to its outcome.
		for _, r := range execRes.Results {
			request.Contents = append(request.Contents,
				models.NewFunctionCall(r.Call.Name, r.Call.Args),
				models.NewFunctionResult(r.Call.Name, r.Result),
			)
		}

		if !execRes.ShouldProceed {
			// The executor asked to stop. The folded round is persisted
			// below and the chat ends like a normal completion.
			exhausted = false
			break
		}
	}

	c.metrics.ChatRounds(rounds)

	if exhausted {
		if c.logger != nil {
			c.logger.Warn("iteration cap reached",
				"chat_id", req.ChatID,
				"max_iterations", req.MaxIterations)
		}
		emit(Chunk{Text: MaxIterationsMessage})
	}

	if err := c.persist(ctx, req.ChatID, request.Contents); err != nil {
		emit(Chunk{Err: err})
	}
}

func (c *Client) persist(ctx context.Context, chatID string, history []models.Message) error {
	if c.manager.Storage == nil || chatID == "" {
		return nil
	}
	return c.manager.Storage.UpdateHistory(ctx, chatID, history)
}
