package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/haikalllp/smoothie-rs-queuer/internal/history"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
	"github.com/haikalllp/smoothie-rs-queuer/internal/testsupport"
)

func mustOpen(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func terminalTask(id int64, status queue.Status, message string) *queue.Task {
	started := time.Now().Add(-time.Minute)
	finished := time.Now()
	return &queue.Task{
		ID:           id,
		SourcePath:   "/videos/clip.mp4",
		OutputDir:    "/videos/out",
		Recipe:       "/smoothie/recipe.ini",
		Status:       status,
		ErrorMessage: message,
		StartedAt:    &started,
		FinishedAt:   &finished,
	}
}

func TestRecordAndList(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()

	if err := store.Record(ctx, terminalTask(1, queue.StatusCompleted, "")); err != nil {
		t.Fatalf("record completed: %v", err)
	}
	if err := store.Record(ctx, terminalTask(2, queue.StatusFailed, "exit status 1")); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].TaskID != 2 || entries[1].TaskID != 1 {
		t.Fatalf("order = %d,%d, want 2,1", entries[0].TaskID, entries[1].TaskID)
	}
	if entries[0].Status != queue.StatusFailed || entries[0].ErrorMessage != "exit status 1" {
		t.Fatalf("failed entry = %+v", entries[0])
	}
	if entries[1].StartedAt == nil || entries[1].FinishedAt == nil {
		t.Fatal("timestamps not round-tripped")
	}
	if entries[0].RecordedAt.IsZero() {
		t.Fatal("recorded_at not set")
	}
}

func TestRecordRejectsNonTerminal(t *testing.T) {
	store := mustOpen(t)
	task := terminalTask(1, queue.StatusRunning, "")
	if err := store.Record(context.Background(), task); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
}

func TestListLimit(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		if err := store.Record(ctx, terminalTask(i, queue.StatusCompleted, "")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].TaskID != 5 {
		t.Fatalf("newest task = %d, want 5", entries[0].TaskID)
	}
}

func TestClear(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if err := store.Record(ctx, terminalTask(i, queue.StatusFailed, "boom")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("list after clear: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries after clear = %d, want 0", len(entries))
	}
}
