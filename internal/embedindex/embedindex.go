// Package embedindex generates embedding vectors for code chunks through
// the batch engine, so embedding calls share the same budgeting, retry and
// caching behaviour as summarization.
package embedindex

import (
	"context"
	"fmt"

	"github.com/mfarouk/repochat/internal/batch"
	"github.com/mfarouk/repochat/internal/chunker"
	"github.com/mfarouk/repochat/internal/embeddings"
)

// Service embeds code chunks through the batch engine.
type Service struct {
	engine   *batch.Engine[[]float32]
	embedder embeddings.Embedder
}

// New creates an embedding service backed by the given embedder.
func New(embedder embeddings.Embedder, opts batch.Options) (*Service, error) {
	eng, err := batch.New[[]float32]("embed",
		batch.InvokerFunc[[]float32](embedder.Embed),
		merger{dims: embedder.Dimensions()},
		opts)
	if err != nil {
		return nil, fmt.Errorf("embedindex: %w", err)
	}
	return &Service{engine: eng, embedder: embedder}, nil
}

// SetCache attaches a vector cache keyed by chunk content hash.
func (s *Service) SetCache(c batch.Cache[[]float32]) { s.engine.SetCache(c) }

// Tracker exposes the engine's status counters.
func (s *Service) Tracker() *batch.StatusTracker { return s.engine.Tracker() }

// Dimensions returns the embedder's vector width.
func (s *Service) Dimensions() int { return s.embedder.Dimensions() }

// Chunks embeds every chunk and returns results keyed by chunk ID. A chunk
// whose embedding could not complete carries a zero vector flagged as a
// fallback; callers typically skip storing those.
func (s *Service) Chunks(ctx context.Context, chunks []chunker.Chunk) map[string]batch.Result[[]float32] {
	inputs := make([]batch.Input, len(chunks))
	for i, c := range chunks {
		inputs[i] = batch.Input{ID: c.ID, Content: c.Content}
	}

	results := s.engine.Process(ctx, inputs)

	byID := make(map[string]batch.Result[[]float32], len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	return byID
}

// merger averages the vectors of split chunk pieces.
type merger struct {
	dims int
}

// Merge element-wise averages the non-fallback piece vectors. The average
// keeps the merged vector at unit scale with its inputs, unlike a sum.
func (m merger) Merge(children []batch.ChildResult[[]float32]) []float32 {
	out := make([]float32, m.dims)
	n := 0
	for _, c := range children {
		if c.Fallback || len(c.Value) != m.dims {
			continue
		}
		for i, v := range c.Value {
			out[i] += v
		}
		n++
	}
	if n == 0 {
		return out
	}
	inv := 1 / float32(n)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// Fallback returns the zero vector.
func (m merger) Fallback(item batch.Item) []float32 {
	return make([]float32, m.dims)
}
