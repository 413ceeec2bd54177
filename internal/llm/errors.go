package llm

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mfarouk/repochat/internal/batch"
)

// contextLengthCode is the OpenAI error code for a request whose combined
// tokens exceed the model's context window. It is the one documented 400
// that re-splitting fixes.
const contextLengthCode = "context_length_exceeded"

// classifyOpenAI wraps an error from the OpenAI client with the batch error
// kind that drives the engine's retry policy. Shapes we do not recognize are
// left unwrapped and therefore retried as transient.
func classifyOpenAI(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return batch.RateLimited(err)
		case apiErr.HTTPStatusCode == http.StatusBadRequest && apiCode(apiErr) == contextLengthCode:
			return batch.CostLimited(err)
		case apiErr.HTTPStatusCode >= 500:
			return batch.Transient(err)
		case apiErr.HTTPStatusCode >= 400:
			return batch.Permanent(err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == http.StatusTooManyRequests:
			return batch.RateLimited(err)
		case reqErr.HTTPStatusCode >= 500:
			return batch.Transient(err)
		}
	}

	return batch.Transient(err)
}

// classifyHTTPStatus maps a raw HTTP status to a batch error kind, for
// providers spoken to without an SDK (Ollama).
func classifyHTTPStatus(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return batch.RateLimited(err)
	case status == http.StatusRequestEntityTooLarge:
		return batch.CostLimited(err)
	case status >= 500:
		return batch.Transient(err)
	case status >= 400:
		return batch.Permanent(err)
	default:
		return batch.Transient(err)
	}
}

func apiCode(e *openai.APIError) string {
	if s, ok := e.Code.(string); ok {
		return s
	}
	return ""
}
