package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mfarouk/repochat/internal/batch"
	"github.com/mfarouk/repochat/internal/chat"
	"github.com/mfarouk/repochat/internal/config"
	"github.com/mfarouk/repochat/internal/db"
	"github.com/mfarouk/repochat/internal/embedindex"
	"github.com/mfarouk/repochat/internal/gitrepo"
	"github.com/mfarouk/repochat/internal/indexer"
	"github.com/mfarouk/repochat/internal/llm"
	"github.com/mfarouk/repochat/internal/summarize"
	"github.com/mfarouk/repochat/internal/vectordb"
)

// stubProvider answers every completion with a fixed string.
type stubProvider struct{}

func (stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "stub answer"}, nil
}

func (stubProvider) Name() string { return "stub" }

// stubEmbedder returns a fixed vector per text.
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int { return 3 }
func (stubEmbedder) Name() string    { return "stub" }

// stubVectorStore returns canned results for every search.
type stubVectorStore struct {
	results []vectordb.SearchResult
}

func (s *stubVectorStore) AddDocuments(ctx context.Context, docs []vectordb.Document) error {
	return nil
}

func (s *stubVectorStore) Search(ctx context.Context, query string, limit int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	return s.results, nil
}

func (s *stubVectorStore) DeleteByPath(ctx context.Context, repoID, path string) error { return nil }
func (s *stubVectorStore) DeleteByRepoID(ctx context.Context, repoID string) error     { return nil }
func (s *stubVectorStore) DeleteByID(ctx context.Context, id string) error             { return nil }
func (s *stubVectorStore) Persist(ctx context.Context, dir string) error               { return nil }
func (s *stubVectorStore) Load(ctx context.Context, dir string) error                  { return nil }
func (s *stubVectorStore) Count() int                                                  { return len(s.results) }

func testOptions() batch.Options {
	opts := batch.DefaultOptions()
	opts.MaxAttempts = 1
	return opts
}

func newTestServer(t *testing.T, store vectordb.VectorStore) (*Server, *db.RepoStore) {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repos := db.NewRepoStore(database)
	sessions := db.NewChatStore(database)

	workspace, err := gitrepo.NewWorkspace(filepath.Join(t.TempDir(), "repos"))
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	summarizer, err := summarize.New(stubProvider{}, "stub-model", testOptions())
	if err != nil {
		t.Fatal(err)
	}
	embedSvc, err := embedindex.New(stubEmbedder{}, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	pipeline := indexer.NewPipeline(repos, store, summarizer, embedSvc, cfg, nil)

	chatSvc := chat.New(store, stubProvider{}, "stub-model", sessions)

	srv := New(Config{Host: "127.0.0.1", Port: 0}, Deps{
		Repos:     repos,
		Sessions:  sessions,
		Store:     store,
		Chat:      chatSvc,
		Pipeline:  pipeline,
		Workspace: workspace,
		Trackers: map[string]*batch.StatusTracker{
			"summarize": summarizer.Tracker(),
			"embed":     embedSvc.Tracker(),
		},
	})
	return srv, repos
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t, &stubVectorStore{})

	w := doJSON(t, srv, "GET", "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := newTestServer(t, &stubVectorStore{})
	srv.cfg.AllowAll = true
	srv.router = srv.buildRouter()

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestAddRepoValidation(t *testing.T) {
	srv, _ := newTestServer(t, &stubVectorStore{})

	tests := []struct {
		name string
		body addRepoRequest
		want int
	}{
		{"missing name", addRepoRequest{URL: "https://example.com/x.git"}, http.StatusBadRequest},
		{"missing url", addRepoRequest{Name: "demo"}, http.StatusBadRequest},
		{"path separator in name", addRepoRequest{Name: "a/b", URL: "https://example.com/x.git"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, srv, "POST", "/api/repos", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAddRepoRegistersAndReportsCloneFailure(t *testing.T) {
	srv, repos := newTestServer(t, &stubVectorStore{})

	// The source path does not exist, so the background clone must fail
	// and the repo must end up in the failed state.
	w := doJSON(t, srv, "POST", "/api/repos", addRepoRequest{
		Name: "ghost",
		URL:  filepath.Join(t.TempDir(), "missing"),
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", w.Code, w.Body.String())
	}

	var created db.Repo
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Status != "pending" {
		t.Errorf("Status = %q, want pending", created.Status)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		repo, err := repos.Get(context.Background(), "ghost")
		if err != nil {
			t.Fatal(err)
		}
		if repo.Status == "failed" {
			if repo.LastError == "" {
				t.Error("LastError not recorded")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("repo never reached failed state, status = %q", repo.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Registering the same name again conflicts.
	w = doJSON(t, srv, "POST", "/api/repos", addRepoRequest{
		Name: "ghost",
		URL:  "https://example.com/x.git",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
}

func TestRepoGetListDelete(t *testing.T) {
	srv, repos := newTestServer(t, &stubVectorStore{})

	repo := &db.Repo{Name: "demo", URL: "https://example.com/demo.git"}
	if err := repos.Add(context.Background(), repo); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, srv, "GET", "/api/repos", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list []db.Repo
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "demo" {
		t.Errorf("list = %+v", list)
	}

	if w := doJSON(t, srv, "GET", "/api/repos/demo", nil); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	if w := doJSON(t, srv, "GET", "/api/repos/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", w.Code)
	}

	if w := doJSON(t, srv, "DELETE", "/api/repos/demo", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := doJSON(t, srv, "GET", "/api/repos/demo", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	store := &stubVectorStore{results: []vectordb.SearchResult{{
		Document: vectordb.Document{
			ID:      "r1/main.go:0",
			Content: "Entry point.\n\nfunc main() {}",
			Metadata: vectordb.DocumentMetadata{
				RepoID: "r1", Path: "main.go", StartLine: 1, EndLine: 3, Summary: "Entry point.",
			},
		},
		Similarity: 0.9,
	}}}
	srv, repos := newTestServer(t, store)

	repo := &db.Repo{Name: "demo", URL: "https://example.com/demo.git"}
	if err := repos.Add(context.Background(), repo); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, srv, "POST", "/api/chat", chatRequest{Repo: "demo", Question: "what is this?"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp chat.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "stub answer" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if resp.SessionID == "" {
		t.Error("expected session ID")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Path != "main.go" {
		t.Errorf("Sources = %+v", resp.Sources)
	}

	// History is retrievable for the created session.
	w = doJSON(t, srv, "GET", fmt.Sprintf("/api/chat/%s", resp.SessionID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "what is this?") {
		t.Error("history missing the question")
	}

	if w := doJSON(t, srv, "GET", "/api/chat/missing-session", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", w.Code)
	}
}

func TestChatValidation(t *testing.T) {
	srv, _ := newTestServer(t, &stubVectorStore{})

	if w := doJSON(t, srv, "POST", "/api/chat", chatRequest{Repo: "demo"}); w.Code != http.StatusBadRequest {
		t.Errorf("empty question status = %d, want 400", w.Code)
	}
	if w := doJSON(t, srv, "POST", "/api/chat", chatRequest{Repo: "nope", Question: "hi"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown repo status = %d, want 404", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, repos := newTestServer(t, &stubVectorStore{})

	if err := repos.Add(context.Background(), &db.Repo{Name: "demo"}); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, srv, "GET", "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Repos["total"] != 1 || resp.Repos["pending"] != 1 {
		t.Errorf("Repos = %v", resp.Repos)
	}
	if _, ok := resp.Engines["summarize"]; !ok {
		t.Error("missing summarize engine status")
	}
	if _, ok := resp.Engines["embed"]; !ok {
		t.Error("missing embed engine status")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubVectorStore{})

	w := doJSON(t, srv, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
}
