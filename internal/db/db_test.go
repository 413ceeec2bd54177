package db

import (
	"context"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	// Verify tables exist by querying each one.
	tables := []string{
		"repos", "chunk_state", "cache_entries", "chat_sessions", "chat_messages",
	}

	for _, table := range tables {
		var count int
		err := d.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	// Running migrate again should not fail.
	if err := d.migrate(); err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
}

func TestRepoStoreLifecycle(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	store := NewRepoStore(d)

	repo := &Repo{Name: "payments", URL: "https://example.com/payments.git"}
	if err := store.Add(ctx, repo); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if repo.ID == "" {
		t.Error("expected generated ID")
	}
	if repo.Status != "pending" {
		t.Errorf("expected status pending, got %q", repo.Status)
	}

	got, err := store.Get(ctx, "payments")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil || got.ID != repo.ID {
		t.Fatalf("Get() = %+v, want ID %s", got, repo.ID)
	}

	if err := store.SetStatus(ctx, repo.ID, "indexing", ""); err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	if err := store.MarkIndexed(ctx, repo.ID, "abc123", 42); err != nil {
		t.Fatalf("MarkIndexed() error: %v", err)
	}

	got, err = store.GetByID(ctx, repo.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Status != "ready" || got.HeadSHA != "abc123" || got.ChunkCount != 42 {
		t.Errorf("unexpected repo after MarkIndexed: %+v", got)
	}
	if got.LastIndexed == nil {
		t.Error("expected last_indexed to be set")
	}

	repos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(repos) != 1 {
		t.Errorf("expected 1 repo, got %d", len(repos))
	}

	if err := store.Remove(ctx, "payments"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	got, err = store.Get(ctx, "payments")
	if err != nil {
		t.Fatalf("Get() after remove error: %v", err)
	}
	if got != nil {
		t.Error("expected repo to be gone")
	}
}

func TestGetMissingRepoReturnsNil(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	got, err := NewRepoStore(d).Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestChunkStateRoundTrip(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	store := NewRepoStore(d)

	repo := &Repo{Name: "api"}
	if err := store.Add(ctx, repo); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if err := store.UpsertChunk(ctx, repo.ID, "main.go:0", "hash1", "main.go"); err != nil {
		t.Fatalf("UpsertChunk() error: %v", err)
	}
	if err := store.UpsertChunk(ctx, repo.ID, "main.go:0", "hash2", "main.go"); err != nil {
		t.Fatalf("UpsertChunk() update error: %v", err)
	}

	hashes, err := store.ChunkHashes(ctx, repo.ID)
	if err != nil {
		t.Fatalf("ChunkHashes() error: %v", err)
	}
	if hashes["main.go:0"] != "hash2" {
		t.Errorf("expected upsert to replace hash, got %q", hashes["main.go:0"])
	}

	if err := store.DeleteChunks(ctx, repo.ID, []string{"main.go:0"}); err != nil {
		t.Fatalf("DeleteChunks() error: %v", err)
	}
	hashes, err = store.ChunkHashes(ctx, repo.ID)
	if err != nil {
		t.Fatalf("ChunkHashes() error: %v", err)
	}
	if len(hashes) != 0 {
		t.Errorf("expected no chunk state, got %d entries", len(hashes))
	}
}
