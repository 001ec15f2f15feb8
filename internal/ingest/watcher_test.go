package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haikalllp/smoothie-rs-queuer/internal/ingest"
	"github.com/haikalllp/smoothie-rs-queuer/internal/testsupport"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) enqueue(path string) error {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

func startWatcher(t *testing.T, rec *recorder) (*ingest.Watcher, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithIngest())
	w, err := ingest.NewWatcher(cfg, rec.enqueue, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, cfg.Ingest.Dir
}

func waitForPaths(t *testing.T, rec *recorder, want int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := rec.snapshot(); len(got) >= want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d ingested paths, have %v", want, rec.snapshot())
	return nil
}

func TestWatcherEnqueuesDroppedVideo(t *testing.T) {
	rec := &recorder{}
	_, dir := startWatcher(t, rec)

	target := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(target, []byte("video"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got := waitForPaths(t, rec, 1)
	if got[0] != target {
		t.Fatalf("ingested %q, want %q", got[0], target)
	}
}

func TestWatcherIgnoresNonVideoFiles(t *testing.T) {
	rec := &recorder{}
	_, dir := startWatcher(t, rec)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "clip.webm"), []byte("video"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got := waitForPaths(t, rec, 1)
	for _, path := range got {
		if filepath.Ext(path) == ".txt" {
			t.Fatalf("text file ingested: %v", got)
		}
	}
}

func TestWatcherPicksUpExistingFiles(t *testing.T) {
	rec := &recorder{}
	cfg := testsupport.NewConfig(t, testsupport.WithIngest())
	if err := os.MkdirAll(cfg.Ingest.Dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	existing := filepath.Join(cfg.Ingest.Dir, "old.mkv")
	if err := os.WriteFile(existing, []byte("video"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	w, err := ingest.NewWatcher(cfg, rec.enqueue, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(w.Stop)

	got := waitForPaths(t, rec, 1)
	if got[0] != existing {
		t.Fatalf("ingested %q, want %q", got[0], existing)
	}
}

func TestWatcherCoalescesRepeatedWrites(t *testing.T) {
	rec := &recorder{}
	_, dir := startWatcher(t, rec)

	target := filepath.Join(dir, "clip.mov")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(target, []byte("video data"), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}

	waitForPaths(t, rec, 1)
	time.Sleep(100 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("ingested %d times, want 1: %v", len(got), got)
	}
}
