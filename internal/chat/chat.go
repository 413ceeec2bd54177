// Package chat answers questions about an indexed repository by retrieving
// relevant chunks from the vector store and asking the LLM with that context.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/mfarouk/repochat/internal/db"
	"github.com/mfarouk/repochat/internal/llm"
	"github.com/mfarouk/repochat/internal/vectordb"
)

// DefaultMaxResults is the number of chunks retrieved per question.
const DefaultMaxResults = 8

// maxHistoryMessages bounds how much conversation history is replayed into
// the prompt.
const maxHistoryMessages = 10

// Request is one question against a repository.
type Request struct {
	RepoID     string `json:"repo_id"`
	SessionID  string `json:"session_id,omitempty"` // empty starts a new session
	UserID     string `json:"user_id,omitempty"`
	Question   string `json:"question"`
	MaxResults int    `json:"max_results,omitempty"`
}

// Source attributes part of an answer to an indexed chunk.
type Source struct {
	Path       string  `json:"path"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Language   string  `json:"language,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Similarity float32 `json:"similarity"`
}

// Response is the answer with its supporting sources.
type Response struct {
	SessionID string   `json:"session_id,omitempty"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
}

// Service answers repository questions. Sessions are optional: with a nil
// session store each question is answered statelessly.
type Service struct {
	store    vectordb.VectorStore
	provider llm.Provider
	model    string
	sessions *db.ChatStore
}

// New creates a chat service.
func New(store vectordb.VectorStore, provider llm.Provider, model string, sessions *db.ChatStore) *Service {
	return &Service{
		store:    store,
		provider: provider,
		model:    model,
		sessions: sessions,
	}
}

// Ask answers one question. It searches the vector store scoped to the
// request's repository, builds a context prompt from the hits, and completes
// it with the conversation history when a session is in play.
func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("chat: question is required")
	}

	limit := req.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	var filter *vectordb.SearchFilter
	if req.RepoID != "" {
		filter = &vectordb.SearchFilter{RepoID: &req.RepoID}
	}

	results, err := s.store.Search(ctx, question, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("chat: search: %w", err)
	}

	sessionID, history, err := s.prepareSession(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		resp := &Response{
			SessionID: sessionID,
			Answer:    "I couldn't find any relevant code for your question. Make sure the repository has been indexed.",
			Sources:   []Source{},
		}
		s.record(ctx, sessionID, question, resp)
		return resp, nil
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == "assistant" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: buildQuestionPrompt(question, results),
	})

	completion, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   1024,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: completion: %w", err)
	}

	resp := &Response{
		SessionID: sessionID,
		Answer:    strings.TrimSpace(completion.Content),
		Sources:   formatSources(results),
	}
	s.record(ctx, sessionID, question, resp)
	return resp, nil
}

// History returns the persisted messages of a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]db.Message, error) {
	if s.sessions == nil {
		return nil, fmt.Errorf("chat: sessions are not enabled")
	}
	return s.sessions.Messages(ctx, sessionID)
}

// prepareSession resolves or creates the session and loads its recent
// history. With no session store it returns empty values.
func (s *Service) prepareSession(ctx context.Context, req Request) (string, []db.Message, error) {
	if s.sessions == nil {
		return "", nil, nil
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := s.sessions.CreateSession(ctx, req.RepoID, req.UserID)
		if err != nil {
			return "", nil, fmt.Errorf("chat: create session: %w", err)
		}
		return sess.ID, nil, nil
	}

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("chat: load session: %w", err)
	}
	if sess == nil {
		return "", nil, fmt.Errorf("chat: unknown session %s", sessionID)
	}

	history, err := s.sessions.Messages(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("chat: load history: %w", err)
	}
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	return sessionID, history, nil
}

// record persists the exchange. Persistence failures do not fail the answer.
func (s *Service) record(ctx context.Context, sessionID, question string, resp *Response) {
	if s.sessions == nil || sessionID == "" {
		return
	}

	sourceIDs := make([]string, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		sourceIDs = append(sourceIDs, fmt.Sprintf("%s:%d-%d", src.Path, src.StartLine, src.EndLine))
	}

	s.sessions.AddMessage(ctx, db.Message{
		SessionID: sessionID,
		Role:      "user",
		Content:   question,
	})
	s.sessions.AddMessage(ctx, db.Message{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   resp.Answer,
		Sources:   sourceIDs,
	})
}

func formatSources(results []vectordb.SearchResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			Path:       r.Document.Metadata.Path,
			StartLine:  r.Document.Metadata.StartLine,
			EndLine:    r.Document.Metadata.EndLine,
			Language:   r.Document.Metadata.Language,
			Summary:    r.Document.Metadata.Summary,
			Similarity: r.Similarity,
		})
	}
	return sources
}
