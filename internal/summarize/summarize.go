// Package summarize produces natural-language summaries for code chunks by
// batching them through a single LLM request per batch.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/mfarouk/repochat/internal/batch"
	"github.com/mfarouk/repochat/internal/chunker"
	"github.com/mfarouk/repochat/internal/llm"
)

// Service summarizes code chunks through the batch engine.
type Service struct {
	engine *batch.Engine[string]
}

// New creates a summarization service backed by the given provider.
func New(provider llm.Provider, model string, opts batch.Options) (*Service, error) {
	inv := &invoker{provider: provider, model: model}
	eng, err := batch.New[string]("summarize", inv, merger{}, opts)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return &Service{engine: eng}, nil
}

// SetCache attaches a summary cache keyed by chunk content hash.
func (s *Service) SetCache(c batch.Cache[string]) { s.engine.SetCache(c) }

// Tracker exposes the engine's status counters.
func (s *Service) Tracker() *batch.StatusTracker { return s.engine.Tracker() }

// Chunks summarizes every chunk and returns results keyed by chunk ID.
// Chunks never fails outright: a chunk whose summarization could not
// complete carries a deterministic fallback summary.
func (s *Service) Chunks(ctx context.Context, chunks []chunker.Chunk) map[string]batch.Result[string] {
	inputs := make([]batch.Input, len(chunks))
	for i, c := range chunks {
		inputs[i] = batch.Input{ID: c.ID, Content: c.Content}
	}

	results := s.engine.Process(ctx, inputs)

	byID := make(map[string]batch.Result[string], len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	return byID
}

// invoker turns a batch of chunk texts into one chat completion.
type invoker struct {
	provider llm.Provider
	model    string
}

func (v *invoker) Invoke(ctx context.Context, texts []string) ([]string, error) {
	resp, err := v.provider.Complete(ctx, llm.CompletionRequest{
		Model: v.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: buildBatchPrompt(texts)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	summaries, ok := parseBatchSummaries(resp.Content, len(texts))
	if !ok {
		return nil, fmt.Errorf("response did not contain %d summaries", len(texts))
	}
	return summaries, nil
}

// merger recombines summaries of split chunk pieces.
type merger struct{}

// Merge joins piece summaries in order. Pieces that fell back are dropped
// as long as at least one piece summarized successfully.
func (merger) Merge(children []batch.ChildResult[string]) string {
	var parts []string
	for _, c := range children {
		if !c.Fallback && strings.TrimSpace(c.Value) != "" {
			parts = append(parts, strings.TrimSpace(c.Value))
		}
	}
	if len(parts) == 0 {
		for _, c := range children {
			if strings.TrimSpace(c.Value) != "" {
				parts = append(parts, strings.TrimSpace(c.Value))
			}
		}
	}
	return strings.Join(parts, " ")
}

// Fallback builds a summary from the chunk text itself.
func (merger) Fallback(item batch.Item) string {
	lines := strings.Split(item.Content, "\n")
	head := ""
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			head = t
			break
		}
	}
	const maxHead = 80
	if len(head) > maxHead {
		head = head[:maxHead]
	}
	if head == "" {
		return "Empty code chunk."
	}
	return fmt.Sprintf("Code chunk (%d lines) starting with: %s", len(lines), head)
}
