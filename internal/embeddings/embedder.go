package embeddings

import "context"

// Embedder defines the interface for generating text embeddings.
//
// Embed must return exactly one vector per input text, in input order.
// Implementations classify API failures so callers can distinguish
// rate limits and oversized payloads from permanent errors.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}
