package db

import (
	"context"
	"testing"
)

func TestChatSessionLifecycle(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	store := NewChatStore(d)

	sess, err := store.CreateSession(ctx, "repo-1", "")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if sess.ID == "" {
		t.Error("session ID not assigned")
	}
	if sess.UserID != "anonymous" {
		t.Errorf("UserID = %q, want anonymous default", sess.UserID)
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if got == nil || got.RepoID != "repo-1" {
		t.Errorf("GetSession() = %+v, want repo-1 session", got)
	}

	missing, err := store.GetSession(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSession(missing) error: %v", err)
	}
	if missing != nil {
		t.Errorf("GetSession(missing) = %+v, want nil", missing)
	}
}

func TestChatMessagesRoundTrip(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx := context.Background()
	store := NewChatStore(d)

	sess, err := store.CreateSession(ctx, "repo-1", "alice")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.AddMessage(ctx, Message{
		SessionID: sess.ID,
		Role:      "user",
		Content:   "how does auth work?",
	}); err != nil {
		t.Fatalf("AddMessage(user) error: %v", err)
	}
	if _, err := store.AddMessage(ctx, Message{
		SessionID: sess.ID,
		Role:      "assistant",
		Content:   "tokens are validated in middleware",
		Sources:   []string{"repo-1/auth.go:0", "repo-1/middleware.go:1"},
	}); err != nil {
		t.Fatalf("AddMessage(assistant) error: %v", err)
	}

	messages, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Errorf("messages out of order: %s, %s", messages[0].Role, messages[1].Role)
	}
	if len(messages[0].Sources) != 0 {
		t.Errorf("user message has sources: %v", messages[0].Sources)
	}
	if len(messages[1].Sources) != 2 || messages[1].Sources[0] != "repo-1/auth.go:0" {
		t.Errorf("assistant sources = %v", messages[1].Sources)
	}
}

func TestSessionsFilteredByRepo(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx := context.Background()
	store := NewChatStore(d)

	if _, err := store.CreateSession(ctx, "repo-1", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateSession(ctx, "repo-2", "bob"); err != nil {
		t.Fatal(err)
	}

	all, err := store.Sessions(ctx, "")
	if err != nil {
		t.Fatalf("Sessions() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d sessions, want 2", len(all))
	}

	filtered, err := store.Sessions(ctx, "repo-2")
	if err != nil {
		t.Fatalf("Sessions(repo-2) error: %v", err)
	}
	if len(filtered) != 1 || filtered[0].UserID != "bob" {
		t.Errorf("Sessions(repo-2) = %+v", filtered)
	}

	count, err := store.CountSessions(ctx)
	if err != nil {
		t.Fatalf("CountSessions() error: %v", err)
	}
	if count != 2 {
		t.Errorf("CountSessions() = %d, want 2", count)
	}
}
