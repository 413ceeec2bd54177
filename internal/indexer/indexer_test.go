package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfarouk/repochat/internal/batch"
	"github.com/mfarouk/repochat/internal/config"
	"github.com/mfarouk/repochat/internal/db"
	"github.com/mfarouk/repochat/internal/embedindex"
	"github.com/mfarouk/repochat/internal/llm"
	"github.com/mfarouk/repochat/internal/summarize"
	"github.com/mfarouk/repochat/internal/vectordb"
)

// numberedProvider answers any batch prompt with one numbered summary per
// chunk it finds in the prompt.
type numberedProvider struct{}

func (numberedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	n := strings.Count(prompt, "CHUNK ")
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d: summary of chunk %d\n", i, i)
	}
	return &llm.CompletionResponse{Content: b.String()}, nil
}

func (numberedProvider) Name() string { return "mock" }

// fixedEmbedder returns the same small vector for every text.
type fixedEmbedder struct {
	fail bool
}

func (e *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, batch.Permanent(fmt.Errorf("embedding rejected"))
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

func (e *fixedEmbedder) Dimensions() int { return 4 }
func (e *fixedEmbedder) Name() string    { return "mock" }

// memStore is an in-memory VectorStore that records documents by ID.
type memStore struct {
	mu   sync.Mutex
	docs map[string]vectordb.Document
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]vectordb.Document)}
}

func (s *memStore) AddDocuments(ctx context.Context, docs []vectordb.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return nil
}

func (s *memStore) Search(ctx context.Context, query string, limit int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	return nil, nil
}

func (s *memStore) DeleteByPath(ctx context.Context, repoID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.docs {
		if d.Metadata.RepoID == repoID && d.Metadata.Path == path {
			delete(s.docs, id)
		}
	}
	return nil
}

func (s *memStore) DeleteByRepoID(ctx context.Context, repoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.docs {
		if d.Metadata.RepoID == repoID {
			delete(s.docs, id)
		}
	}
	return nil
}

func (s *memStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *memStore) Persist(ctx context.Context, dir string) error { return nil }
func (s *memStore) Load(ctx context.Context, dir string) error    { return nil }

func (s *memStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// failingStore rejects every write.
type failingStore struct {
	memStore
}

func (s *failingStore) AddDocuments(ctx context.Context, docs []vectordb.Document) error {
	return fmt.Errorf("store unavailable")
}

func testEngineOptions() batch.Options {
	return batch.Options{
		MaxBatchSize:      10,
		MaxCostPerBatch:   100_000,
		MaxConcurrent:     2,
		RequestsPerWindow: 1000,
		CostPerWindow:     1_000_000,
		Window:            time.Minute,
		MaxAttempts:       1,
		Deadline:          batch.NoDeadline,
		SplitOverlap:      0,
		CacheTTL:          time.Hour,
	}
}

// newTestPipeline wires a pipeline over an in-memory database, a recording
// vector store, and mock provider/embedder services.
func newTestPipeline(t *testing.T, embedder *fixedEmbedder) (*Pipeline, *db.RepoStore, *memStore) {
	t.Helper()

	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	repos := db.NewRepoStore(d)

	summarizer, err := summarize.New(numberedProvider{}, "mock-model", testEngineOptions())
	if err != nil {
		t.Fatalf("summarize.New() error: %v", err)
	}
	embedSvc, err := embedindex.New(embedder, testEngineOptions())
	if err != nil {
		t.Fatalf("embedindex.New() error: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	store := newMemStore()
	return NewPipeline(repos, store, summarizer, embedSvc, cfg, nil), repos, store
}

func writeRepoFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func addRepo(t *testing.T, repos *db.RepoStore, localPath string) *db.Repo {
	t.Helper()
	repo := &db.Repo{Name: "demo", URL: "https://example.com/demo.git", LocalPath: localPath}
	if err := repos.Add(context.Background(), repo); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	return repo
}

func TestRunIndexesNewRepo(t *testing.T) {
	pipeline, repos, store := newTestPipeline(t, &fixedEmbedder{})

	dir := t.TempDir()
	writeRepoFiles(t, dir, map[string]string{
		"main.go":  "package main\n\nfunc main() {}\n",
		"util.py":  "def add(a, b):\n    return a + b\n",
		"README":   "demo project\n",
		"logo.bin": "\x00\x01\x02",
	})

	repo := addRepo(t, repos, dir)
	result, err := pipeline.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Binary files never reach the chunker.
	if result.FilesWalked != 3 {
		t.Errorf("FilesWalked = %d, want 3", result.FilesWalked)
	}
	if result.ChunksTotal != 3 || result.ChunksChanged != 3 {
		t.Errorf("got total=%d changed=%d, want 3/3", result.ChunksTotal, result.ChunksChanged)
	}
	if result.ChunksFailed != 0 {
		t.Errorf("ChunksFailed = %d, want 0", result.ChunksFailed)
	}
	if store.Count() != 3 {
		t.Errorf("store holds %d documents, want 3", store.Count())
	}

	updated, err := repos.GetByID(context.Background(), repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != "ready" {
		t.Errorf("Status = %q, want ready", updated.Status)
	}
	if updated.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", updated.ChunkCount)
	}
	if updated.LastIndexed == nil {
		t.Error("LastIndexed not set")
	}
}

func TestRunSkipsUnchangedChunks(t *testing.T) {
	pipeline, repos, store := newTestPipeline(t, &fixedEmbedder{})

	dir := t.TempDir()
	writeRepoFiles(t, dir, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
		"util.py": "def add(a, b):\n    return a + b\n",
	})
	repo := addRepo(t, repos, dir)

	if _, err := pipeline.Run(context.Background(), repo); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	result, err := pipeline.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if result.ChunksChanged != 0 {
		t.Errorf("ChunksChanged = %d, want 0 on unchanged repo", result.ChunksChanged)
	}
	if result.ChunksSkipped != 2 {
		t.Errorf("ChunksSkipped = %d, want 2", result.ChunksSkipped)
	}
	if store.Count() != 2 {
		t.Errorf("store holds %d documents, want 2", store.Count())
	}
}

func TestRunReindexesModifiedFile(t *testing.T) {
	pipeline, repos, _ := newTestPipeline(t, &fixedEmbedder{})

	dir := t.TempDir()
	writeRepoFiles(t, dir, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
		"util.py": "def add(a, b):\n    return a + b\n",
	})
	repo := addRepo(t, repos, dir)

	if _, err := pipeline.Run(context.Background(), repo); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	writeRepoFiles(t, dir, map[string]string{
		"util.py": "def add(a, b):\n    return a + b\n\ndef sub(a, b):\n    return a - b\n",
	})

	result, err := pipeline.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if result.ChunksChanged != 1 {
		t.Errorf("ChunksChanged = %d, want 1", result.ChunksChanged)
	}
	if result.ChunksSkipped != 1 {
		t.Errorf("ChunksSkipped = %d, want 1", result.ChunksSkipped)
	}
}

func TestRunDeletesStaleChunks(t *testing.T) {
	pipeline, repos, store := newTestPipeline(t, &fixedEmbedder{})

	dir := t.TempDir()
	writeRepoFiles(t, dir, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
		"old.py":  "def gone():\n    pass\n",
	})
	repo := addRepo(t, repos, dir)

	if _, err := pipeline.Run(context.Background(), repo); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "old.py")); err != nil {
		t.Fatal(err)
	}

	result, err := pipeline.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if result.ChunksDeleted != 1 {
		t.Errorf("ChunksDeleted = %d, want 1", result.ChunksDeleted)
	}
	if store.Count() != 1 {
		t.Errorf("store holds %d documents, want 1", store.Count())
	}
	for _, d := range store.docs {
		if d.Metadata.Path != "main.go" {
			t.Errorf("unexpected surviving document for %s", d.Metadata.Path)
		}
	}
}

func TestRunLeavesFailedEmbeddingsUnindexed(t *testing.T) {
	embedder := &fixedEmbedder{fail: true}
	pipeline, repos, store := newTestPipeline(t, embedder)

	dir := t.TempDir()
	writeRepoFiles(t, dir, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	repo := addRepo(t, repos, dir)

	result, err := pipeline.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.ChunksFailed != 1 {
		t.Errorf("ChunksFailed = %d, want 1", result.ChunksFailed)
	}
	if store.Count() != 0 {
		t.Errorf("store holds %d documents, want 0", store.Count())
	}

	// The failed chunk was never recorded, so a later run retries it.
	embedder.fail = false
	result, err = pipeline.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("retry Run() error: %v", err)
	}
	if result.ChunksChanged != 1 {
		t.Errorf("retry ChunksChanged = %d, want 1", result.ChunksChanged)
	}
	if store.Count() != 1 {
		t.Errorf("store holds %d documents after retry, want 1", store.Count())
	}
}

func TestRunRequiresLocalPath(t *testing.T) {
	pipeline, repos, _ := newTestPipeline(t, &fixedEmbedder{})
	repo := addRepo(t, repos, "")
	repo.LocalPath = ""

	if _, err := pipeline.Run(context.Background(), repo); err == nil {
		t.Error("expected error for repo without local clone")
	}
}

func TestRunMarksRepoFailedOnStoreError(t *testing.T) {
	pipeline, repos, _ := newTestPipeline(t, &fixedEmbedder{})
	pipeline.store = &failingStore{}

	dir := t.TempDir()
	writeRepoFiles(t, dir, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	repo := addRepo(t, repos, dir)

	if _, err := pipeline.Run(context.Background(), repo); err == nil {
		t.Fatal("expected error from failing store")
	}

	updated, err := repos.GetByID(context.Background(), repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != "failed" {
		t.Errorf("Status = %q, want failed", updated.Status)
	}
	if updated.LastError == "" {
		t.Error("LastError not recorded")
	}
}

func TestRunRetriesChunksAfterStoreError(t *testing.T) {
	pipeline, repos, store := newTestPipeline(t, &fixedEmbedder{})

	dir := t.TempDir()
	writeRepoFiles(t, dir, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	repo := addRepo(t, repos, dir)

	// First run fails at the store write. No chunk state may be committed,
	// or the next run would diff the chunk as unchanged and never store it.
	pipeline.store = &failingStore{}
	if _, err := pipeline.Run(context.Background(), repo); err == nil {
		t.Fatal("expected error from failing store")
	}

	pipeline.store = store
	result, err := pipeline.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() after store recovery: %v", err)
	}
	if result.ChunksChanged != 1 {
		t.Errorf("retry ChunksChanged = %d, want 1", result.ChunksChanged)
	}
	if store.Count() != 1 {
		t.Errorf("store holds %d documents after recovery, want 1", store.Count())
	}
}

func TestLoadIndexMissingSnapshot(t *testing.T) {
	if err := LoadIndex(context.Background(), newMemStore(), t.TempDir()); err != nil {
		t.Errorf("LoadIndex() on empty data dir: %v", err)
	}
}
