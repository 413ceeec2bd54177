package llm

import "context"

// Provider defines the interface for LLM providers. Implementations classify
// their failures (see errors.go) so the batch engine can pick the right
// retry path without string-matching provider message text.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}
