// Package llm provides the stateless gateway agents use for semantic
// judgments. The gateway is a thin request/response facade: agents own the
// retry policy, the gateway owns timeouts, rate limiting, and caching.
package llm

import (
	"context"
	"errors"
)

// Sentinel errors agents can match with errors.Is to decide how to degrade.
var (
	// ErrTimeout indicates the upstream model did not answer in time.
	ErrTimeout = errors.New("llm gateway: request timed out")
	// ErrUnavailable indicates the upstream model rejected or dropped the request.
	ErrUnavailable = errors.New("llm gateway: upstream unavailable")
)

// Constraints bound a single completion request.
type Constraints struct {
	// MaxTokens caps the completion length. Zero means the provider default.
	MaxTokens int
	// Temperature controls sampling randomness. Analysis prompts should stay
	// near zero so repeated runs produce comparable phrasing.
	Temperature float32
}

// Gateway is the LLM facade consumed by the pattern and refactoring agents.
type Gateway interface {
	// Complete sends one prompt and returns the model's text response.
	// Failures surface as errors wrapping ErrTimeout or ErrUnavailable.
	Complete(ctx context.Context, prompt string, constraints Constraints) (string, error)
}
