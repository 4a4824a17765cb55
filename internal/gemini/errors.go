// Package gemini wraps the Gemini generate-content endpoint behind a
// bounded-retry gateway and decomposes raw responses into the text fragments
// and function calls the agent loop consumes.
package gemini

import (
	"errors"
	"fmt"
)

// APIError reports an endpoint failure that survived the retry budget. Code
// carries the vendor error code when the SDK exposes one, "UNKNOWN" otherwise.
type APIError struct {
	// Code is the vendor error code.
	Code string

	// Message is the vendor error message.
	Message string

	// Cause is the underlying SDK error.
	Cause error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error %s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Cause }

// ResponseError reports a response the endpoint accepted but that carries no
// usable content: no candidates, or a candidate without parts.
type ResponseError struct {
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid gemini response: %s", e.Message)
}

// IsAPIError reports whether err wraps an APIError.
func IsAPIError(err error) bool {
	var target *APIError
	return errors.As(err, &target)
}

// IsResponseError reports whether err wraps a ResponseError.
func IsResponseError(err error) bool {
	var target *ResponseError
	return errors.As(err, &target)
}
