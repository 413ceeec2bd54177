package embedindex

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mfarouk/repochat/internal/batch"
	"github.com/mfarouk/repochat/internal/chunker"
)

// countingEmbedder returns constant vectors and records calls.
type countingEmbedder struct {
	mu    sync.Mutex
	dims  int
	fill  float32
	err   error
	calls int
}

func (e *countingEmbedder) Name() string    { return "counting" }
func (e *countingEmbedder) Dimensions() int { return e.dims }

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dims)
		for j := range vec {
			vec[j] = e.fill
		}
		out[i] = vec
	}
	return out, nil
}

func testOptions() batch.Options {
	opts := batch.DefaultOptions()
	opts.MaxBatchSize = 50
	opts.MaxCostPerBatch = 10_000
	opts.MaxConcurrent = 2
	opts.RequestsPerWindow = 1000
	opts.CostPerWindow = 1_000_000
	opts.Window = time.Minute
	opts.MaxAttempts = 2
	return opts
}

func testChunks(n int) []chunker.Chunk {
	chunks := make([]chunker.Chunk, n)
	for i := range chunks {
		content := fmt.Sprintf("type Widget%d struct{ ID string }", i)
		chunks[i] = chunker.Chunk{
			ID:      fmt.Sprintf("types.go:%d", i),
			Path:    "types.go",
			Content: content,
			Hash:    batch.ContentHash(content),
		}
	}
	return chunks
}

func TestChunksEmbedsEveryChunk(t *testing.T) {
	embedder := &countingEmbedder{dims: 8, fill: 0.25}
	svc, err := New(embedder, testOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	chunks := testChunks(10)
	results := svc.Chunks(context.Background(), chunks)

	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for _, c := range chunks {
		r, ok := results[c.ID]
		if !ok {
			t.Errorf("missing result for %s", c.ID)
			continue
		}
		if r.WasFallback {
			t.Errorf("unexpected fallback for %s", c.ID)
		}
		if len(r.Value) != 8 || r.Value[0] != 0.25 {
			t.Errorf("unexpected vector for %s: %v", c.ID, r.Value)
		}
	}
	if embedder.calls != 1 {
		t.Errorf("expected 1 batched call, got %d", embedder.calls)
	}
}

func TestChunksFallsBackToZeroVector(t *testing.T) {
	embedder := &countingEmbedder{dims: 4, err: batch.Permanent(fmt.Errorf("bad model"))}
	svc, err := New(embedder, testOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	results := svc.Chunks(context.Background(), testChunks(2))

	for id, r := range results {
		if !r.WasFallback {
			t.Errorf("expected fallback for %s", id)
		}
		if len(r.Value) != 4 {
			t.Fatalf("fallback vector has %d dims, want 4", len(r.Value))
		}
		for _, v := range r.Value {
			if v != 0 {
				t.Errorf("fallback vector must be zero, got %v", r.Value)
			}
		}
	}
}

func TestMergeAveragesPieces(t *testing.T) {
	m := merger{dims: 2}
	got := m.Merge([]batch.ChildResult[[]float32]{
		{Value: []float32{1, 0}},
		{Value: []float32{0, 1}},
		{Value: []float32{0, 0}, Fallback: true},
	})
	if math.Abs(float64(got[0])-0.5) > 1e-6 || math.Abs(float64(got[1])-0.5) > 1e-6 {
		t.Errorf("Merge = %v, want [0.5 0.5]", got)
	}
}

func TestMergeAllFallbacksIsZero(t *testing.T) {
	m := merger{dims: 3}
	got := m.Merge([]batch.ChildResult[[]float32]{
		{Value: []float32{0, 0, 0}, Fallback: true},
	})
	for _, v := range got {
		if v != 0 {
			t.Errorf("expected zero vector, got %v", got)
		}
	}
}

func TestMergeSkipsWrongWidthVectors(t *testing.T) {
	m := merger{dims: 2}
	got := m.Merge([]batch.ChildResult[[]float32]{
		{Value: []float32{1, 1}},
		{Value: []float32{9}}, // truncated response, ignore
	})
	if got[0] != 1 || got[1] != 1 {
		t.Errorf("Merge = %v, want [1 1]", got)
	}
}
