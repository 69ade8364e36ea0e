// Package llm provides the model backend used to review code chunks.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request is a single completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the model's answer.
type Response struct {
	Content    string
	TokensUsed int
}

// Reviewer produces a completion for a review prompt. Implementations
// must not retry throttled requests themselves: a rate limit surfaces
// as a RateLimitError so the caller's scheduler can back off.
type Reviewer interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// RateLimitError indicates the backend throttled the request.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded"
	}
	return fmt.Sprintf("rate limit exceeded: %s", e.Message)
}

// IsRateLimit reports whether err is a backend throttle.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// APIError is any other non-200 backend response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}
