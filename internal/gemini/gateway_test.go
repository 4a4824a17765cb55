package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/genai"

	"github.com/blockmind/fastgemini/internal/observability"
	"github.com/blockmind/fastgemini/pkg/models"
)

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, len(texts))
	for i, t := range texts {
		parts[i] = &genai.Part{Text: t}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: parts}},
		},
	}
}

// scriptedGenerate plays back a sequence of raw responses and errors.
type scriptedGenerate struct {
	raw   []*genai.GenerateContentResponse
	errs  []error
	calls int
}

func (s *scriptedGenerate) fn(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx < len(s.raw) {
		return s.raw[idx], nil
	}
	return nil, errors.New("script exhausted")
}

func testGateway(s *scriptedGenerate) *Gateway {
	return newGateway(Config{RetryDelay: time.Millisecond}, s.fn)
}

func oneMessage() []models.Message {
	return []models.Message{models.NewUserQuery("hi")}
}

func TestGenerateSuccessFirstAttempt(t *testing.T) {
	script := &scriptedGenerate{raw: []*genai.GenerateContentResponse{textResponse("hello")}}
	g := testGateway(script)

	resp, err := g.Generate(context.Background(), "m", oneMessage(), nil, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resp.Texts()) != 1 || resp.Texts()[0] != "hello" {
		t.Errorf("unexpected texts: %v", resp.Texts())
	}
	if script.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", script.calls)
	}
}

func TestGenerateRetriesEndpointError(t *testing.T) {
	script := &scriptedGenerate{
		errs: []error{errors.New("transient")},
		raw:  []*genai.GenerateContentResponse{nil, textResponse("recovered")},
	}
	g := testGateway(script)

	resp, err := g.Generate(context.Background(), "m", oneMessage(), nil, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Texts()[0] != "recovered" {
		t.Errorf("unexpected texts: %v", resp.Texts())
	}
	if script.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", script.calls)
	}
}

func TestGenerateRetriesInvalidResponse(t *testing.T) {
	// An accepted-but-empty response burns a retry just like an endpoint
	// error does.
	script := &scriptedGenerate{
		raw: []*genai.GenerateContentResponse{
			{}, // no candidates
			textResponse("second try"),
		},
	}
	g := testGateway(script)

	resp, err := g.Generate(context.Background(), "m", oneMessage(), nil, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Texts()[0] != "second try" {
		t.Errorf("unexpected texts: %v", resp.Texts())
	}
}

func TestGenerateExhaustsBudgetAndReturnsTypedError(t *testing.T) {
	script := &scriptedGenerate{
		errs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	g := testGateway(script)

	_, err := g.Generate(context.Background(), "m", oneMessage(), nil, 2)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAPIError(err) {
		t.Fatalf("expected APIError, got %T", err)
	}
	var apiErr *APIError
	errors.As(err, &apiErr)
	if apiErr.Code != "UNKNOWN" {
		t.Errorf("expected UNKNOWN code for non-SDK error, got %s", apiErr.Code)
	}
	if script.calls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", script.calls)
	}
}

func TestGenerateInvalidResponseAfterBudgetIsResponseError(t *testing.T) {
	script := &scriptedGenerate{
		raw: []*genai.GenerateContentResponse{{}, {}},
	}
	g := testGateway(script)

	_, err := g.Generate(context.Background(), "m", oneMessage(), nil, 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsResponseError(err) {
		t.Errorf("expected ResponseError, got %T: %v", err, err)
	}
}

func TestGenerateNegativeRetriesMeansSingleAttempt(t *testing.T) {
	script := &scriptedGenerate{errs: []error{errors.New("down")}}
	g := testGateway(script)

	if _, err := g.Generate(context.Background(), "m", oneMessage(), nil, -5); err == nil {
		t.Fatal("expected error")
	}
	if script.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", script.calls)
	}
}

func TestGenerateHonorsContextDuringRetryDelay(t *testing.T) {
	script := &scriptedGenerate{
		errs: []error{errors.New("down"), errors.New("down")},
	}
	g := newGateway(Config{RetryDelay: time.Hour}, script.fn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, "m", oneMessage(), nil, 1)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not return after cancellation")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestGenerateRecordsCallAndRetryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	script := &scriptedGenerate{
		errs: []error{errors.New("transient")},
		raw:  []*genai.GenerateContentResponse{nil, textResponse("recovered")},
	}
	g := newGateway(Config{RetryDelay: time.Millisecond, Metrics: metrics}, script.fn)

	if _, err := g.Generate(context.Background(), "m", oneMessage(), nil, 1); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := counterValue(t, reg, "fastgemini_model_calls_total"); got != 2 {
		t.Errorf("expected 2 model calls recorded, got %v", got)
	}
	if got := counterValue(t, reg, "fastgemini_model_retries_total"); got != 1 {
		t.Errorf("expected 1 retry recorded, got %v", got)
	}
	if got := counterValue(t, reg, "fastgemini_model_failures_total"); got != 0 {
		t.Errorf("expected no failures recorded, got %v", got)
	}
}

func TestGenerateRecordsFailureMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	script := &scriptedGenerate{
		errs: []error{errors.New("down"), errors.New("down")},
	}
	g := newGateway(Config{RetryDelay: time.Millisecond, Metrics: metrics}, script.fn)

	if _, err := g.Generate(context.Background(), "m", oneMessage(), nil, 1); err == nil {
		t.Fatal("expected error")
	}
	if got := counterValue(t, reg, "fastgemini_model_failures_total"); got != 1 {
		t.Errorf("expected 1 failure recorded, got %v", got)
	}
	if got := counterValue(t, reg, "fastgemini_model_calls_total"); got != 2 {
		t.Errorf("expected 2 model calls recorded, got %v", got)
	}
}

func TestDecomposeExtractsPartsInOrder(t *testing.T) {
	raw := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "first"},
				{FunctionCall: &genai.FunctionCall{Name: "lookup", Args: map[string]any{"k": "v"}}},
				{Text: "second"},
				{FunctionCall: &genai.FunctionCall{}}, // unnamed: ignored
				nil,                                   // ignored
			}},
		}},
	}

	resp, err := decompose(raw)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if got := resp.Texts(); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected texts: %v", got)
	}
	calls := resp.FunctionCalls()
	if len(calls) != 1 || calls[0].Name != "lookup" {
		t.Errorf("unexpected calls: %v", calls)
	}
	if !resp.HasFunctionCalls() {
		t.Error("HasFunctionCalls should be true")
	}
}

func TestDecomposeRejectsEmptyResponses(t *testing.T) {
	tests := []struct {
		name string
		raw  *genai.GenerateContentResponse
	}{
		{"nil response", nil},
		{"no candidates", &genai.GenerateContentResponse{}},
		{"nil candidate", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{nil}}},
		{"no content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
		{"no parts", &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{}}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decompose(tc.raw); !IsResponseError(err) {
				t.Errorf("expected ResponseError, got %v", err)
			}
		})
	}
}
