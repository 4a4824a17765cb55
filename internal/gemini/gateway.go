package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"google.golang.org/genai"

	"github.com/blockmind/fastgemini/internal/observability"
	"github.com/blockmind/fastgemini/pkg/models"
)

// DefaultRetryDelay is the fixed pause between generate attempts.
const DefaultRetryDelay = time.Second

// Config configures the gateway.
type Config struct {
	// APIKey authenticates against the Gemini API backend.
	APIKey string

	// RetryDelay is the fixed delay between attempts. Zero means
	// DefaultRetryDelay.
	RetryDelay time.Duration

	// Logger receives retry and failure logs. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives model-call counters. Nil disables metrics.
	Metrics *observability.Metrics
}

// generateFunc issues one raw generate-content call. Swapped out in tests.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gateway is the single seam to the Gemini endpoint. It owns transient-fault
// handling: both endpoint errors and invalid responses are retried on the
// same fixed-delay budget, and the last failure is returned typed so callers
// can distinguish the two.
type Gateway struct {
	client   *genai.Client
	generate generateFunc
	delay    time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewGateway builds a gateway over a real Gemini client.
func NewGateway(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	g := newGateway(cfg, func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return client.Models.GenerateContent(ctx, model, contents, config)
	})
	g.client = client
	return g, nil
}

// newGateway wires a gateway over an arbitrary generate function. Tests use
// this to fake the endpoint without a client.
func newGateway(cfg Config, fn generateFunc) *Gateway {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &Gateway{
		generate: fn,
		delay:    delay,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Client exposes the underlying SDK client for collaborators that manage
// other Gemini resources, like cached content.
func (g *Gateway) Client() *genai.Client { return g.client }

// Generate sends the conversation and returns the decomposed response.
// retries is the number of additional attempts after the first; attempts are
// spaced by the configured fixed delay. Endpoint errors and invalid
// responses share the budget. Negative retries means none.
func (g *Gateway) Generate(ctx context.Context, model string, messages []models.Message, config *genai.GenerateContentConfig, retries int) (*Response, error) {
	if retries < 0 {
		retries = 0
	}
	contents, err := models.ToContents(messages)
	if err != nil {
		return nil, fmt.Errorf("gemini: convert messages: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			g.metrics.ModelRetry()
			if g.logger != nil {
				g.logger.Warn("retrying model call",
					"model", model,
					"attempt", attempt,
					"error", lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.delay):
			}
		}

		g.metrics.ModelCall()
		raw, err := g.generate(ctx, model, contents, config)
		if err != nil {
			lastErr = wrapAPIError(err)
			continue
		}
		resp, err := decompose(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}

	g.metrics.ModelFailure()
	if g.logger != nil {
		g.logger.Error("model call failed after retries",
			"model", model,
			"retries", retries,
			"error", lastErr)
	}
	return nil, lastErr
}

// wrapAPIError lifts an SDK error into the gateway's error taxonomy,
// preserving the vendor code when one is available.
func wrapAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Code:    strconv.Itoa(apiErr.Code),
			Message: apiErr.Message,
			Cause:   err,
		}
	}
	return &APIError{Code: "UNKNOWN", Message: err.Error(), Cause: err}
}
