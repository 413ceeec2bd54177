package embeddings

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mfarouk/repochat/internal/batch"
)

const contextLengthCode = "context_length_exceeded"

// classifyOpenAI maps OpenAI API errors onto the batch error taxonomy.
func classifyOpenAI(err error) error {
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
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return batch.RateLimited(err)
		}
		if reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 0 {
			return batch.Transient(err)
		}
	}

	return batch.Transient(err)
}

func apiCode(apiErr *openai.APIError) string {
	if code, ok := apiErr.Code.(string); ok {
		return code
	}
	return ""
}

// classifyHTTPStatus maps a raw HTTP status to the batch error taxonomy.
// Status 0 means the request never got a response (connection failure).
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
