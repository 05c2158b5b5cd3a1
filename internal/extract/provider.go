package extract

import "context"

// CompletionRequest is a single prompt sent to an extraction provider.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is the core interface that all LLM integrations implement.
// Callers inject this interface rather than a concrete provider.
type Provider interface {
	// Complete sends the request and returns the raw text response.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
}
