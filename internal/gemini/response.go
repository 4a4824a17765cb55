package gemini

import (
	"google.golang.org/genai"
)

// Response is a validated, decomposed generate-content response: the text
// fragments and function calls of the first candidate, in part order.
type Response struct {
	texts []string
	calls []*genai.FunctionCall
}

// NewResponse assembles a response directly. Used by gateway fakes; the real
// gateway builds responses through decompose.
func NewResponse(texts []string, calls []*genai.FunctionCall) *Response {
	return &Response{texts: texts, calls: calls}
}

// Texts returns the non-empty text fragments in part order.
func (r *Response) Texts() []string { return r.texts }

// FunctionCalls returns the named function calls in part order. Empty when
// the model produced a final answer.
func (r *Response) FunctionCalls() []*genai.FunctionCall { return r.calls }

// HasFunctionCalls reports whether the model requested any tool invocations.
func (r *Response) HasFunctionCalls() bool { return len(r.calls) > 0 }

// decompose validates the raw response and extracts its usable parts. A
// response must carry at least one candidate with at least one part; parts
// that are neither non-empty text nor a named function call are skipped.
func decompose(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &ResponseError{Message: "no candidates"}
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 {
		return nil, &ResponseError{Message: "candidate has no content parts"}
	}

	out := &Response{}
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			out.texts = append(out.texts, part.Text)
			continue
		}
		if part.FunctionCall != nil && part.FunctionCall.Name != "" {
			out.calls = append(out.calls, part.FunctionCall)
		}
	}
	return out, nil
}
