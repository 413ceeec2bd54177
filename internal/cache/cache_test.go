package cache

import (
	"context"
	"testing"
	"time"

	"github.com/mfarouk/repochat/internal/db"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestGetMissReturnsFalse(t *testing.T) {
	store := New[string](testDB(t), "summaries")

	_, ok, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("expected miss")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New[string](testDB(t), "summaries")

	if err := store.Set(ctx, "abc", "a summary", time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || got != "a summary" {
		t.Errorf("Get() = (%q, %v), want (\"a summary\", true)", got, ok)
	}
}

func TestSetOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	store := New[string](testDB(t), "summaries")

	if err := store.Set(ctx, "abc", "first", time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := store.Set(ctx, "abc", "second", time.Hour); err != nil {
		t.Fatalf("Set() overwrite error: %v", err)
	}

	got, ok, _ := store.Get(ctx, "abc")
	if !ok || got != "second" {
		t.Errorf("Get() = (%q, %v), want (\"second\", true)", got, ok)
	}
}

func TestNamespacesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	d := testDB(t)

	summaries := New[string](d, "summaries")
	vectors := New[[]float32](d, "embeddings")

	if err := summaries.Set(ctx, "abc", "text", 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := vectors.Set(ctx, "abc", []float32{1, 2, 3}, 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	text, ok, _ := summaries.Get(ctx, "abc")
	if !ok || text != "text" {
		t.Errorf("summaries.Get() = (%q, %v)", text, ok)
	}
	vec, ok, _ := vectors.Get(ctx, "abc")
	if !ok || len(vec) != 3 {
		t.Errorf("vectors.Get() = (%v, %v)", vec, ok)
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := New[string](testDB(t), "summaries")

	if err := store.Set(ctx, "abc", "stale", -time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	_, ok, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("expected expired entry to be a miss")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	store := New[string](testDB(t), "summaries")

	if err := store.Set(ctx, "abc", "keep", 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok, _ := store.Get(ctx, "abc")
	if !ok || got != "keep" {
		t.Errorf("Get() = (%q, %v), want (\"keep\", true)", got, ok)
	}
}

func TestPurgeRemovesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	d := testDB(t)
	store := New[string](d, "summaries")

	if err := store.Set(ctx, "old", "stale", -time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := store.Set(ctx, "fresh", "ok", time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	n, err := Purge(ctx, d)
	if err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Purge() removed %d entries, want 1", n)
	}

	_, ok, _ := store.Get(ctx, "fresh")
	if !ok {
		t.Error("expected fresh entry to survive purge")
	}
}
