package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mfarouk/repochat/internal/batch"
	"github.com/mfarouk/repochat/internal/chat"
	"github.com/mfarouk/repochat/internal/db"
)

// addRepoRequest registers a repository for indexing.
type addRepoRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// chatRequest is the HTTP chat payload. Repo selects the repository by
// name; it is optional when continuing an existing session.
type chatRequest struct {
	Repo       string `json:"repo,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Question   string `json:"question"`
	MaxResults int    `json:"max_results,omitempty"`
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	Repos     map[string]int          `json:"repos"`
	Documents int                     `json:"documents"`
	Sessions  int                     `json:"sessions"`
	Engines   map[string]batch.Status `json:"engines"`
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.deps.Repos.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "listing repositories: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, repos)
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.deps.Repos.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if repo == nil {
		respondError(w, http.StatusNotFound, "repository not found")
		return
	}
	respondJSON(w, http.StatusOK, repo)
}

// handleAddRepo registers a repository and kicks off clone + index in the
// background. The response carries the record in its pending state.
func (s *Server) handleAddRepo(w http.ResponseWriter, r *http.Request) {
	var req addRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || strings.ContainsAny(req.Name, "/\\") {
		respondError(w, http.StatusBadRequest, "name is required and must not contain path separators")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	existing, err := s.deps.Repos.Get(r.Context(), req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, "repository already registered")
		return
	}

	repo := &db.Repo{
		Name:      req.Name,
		URL:       req.URL,
		LocalPath: s.deps.Workspace.Path(req.Name),
	}
	if err := s.deps.Repos.Add(r.Context(), repo); err != nil {
		respondError(w, http.StatusInternalServerError, "registering repository: "+err.Error())
		return
	}

	go s.cloneAndIndex(repo)

	respondJSON(w, http.StatusAccepted, repo)
}

// cloneAndIndex runs outside the request lifetime.
func (s *Server) cloneAndIndex(repo *db.Repo) {
	ctx := context.Background()

	if _, err := s.deps.Workspace.Ensure(ctx, repo.Name, repo.URL); err != nil {
		log.Printf("server: clone %s: %v", repo.Name, err)
		if err := s.deps.Repos.SetStatus(ctx, repo.ID, "failed", err.Error()); err != nil {
			log.Printf("server: mark %s failed: %v", repo.Name, err)
		}
		return
	}

	result, err := s.deps.Pipeline.Run(ctx, repo)
	if err != nil {
		log.Printf("server: index %s: %v", repo.Name, err)
		return
	}
	log.Printf("server: indexed %s: %d chunks (%d changed, %d failed) in %s",
		repo.Name, result.ChunksTotal, result.ChunksChanged, result.ChunksFailed, result.Duration)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	repo, err := s.deps.Repos.Get(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if repo == nil {
		respondError(w, http.StatusNotFound, "repository not found")
		return
	}

	if err := s.deps.Store.DeleteByRepoID(r.Context(), repo.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "removing documents: "+err.Error())
		return
	}
	if err := s.deps.Workspace.Remove(name); err != nil {
		respondError(w, http.StatusInternalServerError, "removing clone: "+err.Error())
		return
	}
	if err := s.deps.Repos.Remove(r.Context(), name); err != nil {
		respondError(w, http.StatusInternalServerError, "removing record: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	ask := chat.Request{
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		Question:   req.Question,
		MaxResults: req.MaxResults,
	}
	if req.Repo != "" {
		repo, err := s.deps.Repos.Get(r.Context(), req.Repo)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if repo == nil {
			respondError(w, http.StatusNotFound, "repository not found")
			return
		}
		ask.RepoID = repo.ID
	}

	resp, err := s.deps.Chat.Ask(r.Context(), ask)
	if err != nil {
		if strings.Contains(err.Error(), "unknown session") {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.deps.Sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	messages, err := s.deps.Sessions.Messages(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"messages": messages,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	repos, err := s.deps.Repos.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	byStatus := map[string]int{}
	for _, repo := range repos {
		byStatus[repo.Status]++
	}
	byStatus["total"] = len(repos)

	sessions, err := s.deps.Sessions.CountSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	engines := make(map[string]batch.Status, len(s.deps.Trackers))
	for name, tracker := range s.deps.Trackers {
		engines[name] = tracker.Snapshot()
	}

	respondJSON(w, http.StatusOK, statusResponse{
		Repos:     byStatus,
		Documents: s.deps.Store.Count(),
		Sessions:  sessions,
		Engines:   engines,
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
