package main

import (
	"context"
	"strings"
	"testing"

	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
	"github.com/haikalllp/smoothie-rs-queuer/internal/testsupport"
)

func recordFinishedTask(t *testing.T, env *cliTestEnv, name string, status queue.Status, detail string) {
	t.Helper()
	base := testsupport.BaseDir(env.cfg)
	task := env.store.Add(sourceFile(t, base, name), env.cfg.Paths.OutputDir, "recipe.ini")
	if err := env.store.SetStatus(task.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := env.store.SetStatus(task.ID, status, detail); err != nil {
		t.Fatalf("mark %s: %v", status, err)
	}
	finished, ok := env.store.Get(task.ID)
	if !ok {
		t.Fatalf("task %d missing", task.ID)
	}
	if err := env.journal.Record(context.Background(), &finished); err != nil {
		t.Fatalf("record history: %v", err)
	}
}

func TestHistoryListAndClear(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "History is empty")

	recordFinishedTask(t, env, "alpha.mp4", queue.StatusCompleted, "")
	recordFinishedTask(t, env, "beta.mp4", queue.StatusFailed, "render exploded")

	out, _, err = runCLI(t, []string{"history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "alpha.mp4")
	requireContains(t, out, "beta.mp4")
	requireContains(t, out, "render exploded")

	out, _, err = runCLI(t, []string{"history", "--limit", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history limit: %v", err)
	}
	requireContains(t, out, "beta.mp4")
	if strings.Contains(out, "alpha.mp4") {
		t.Fatal("expected limit to drop older entry")
	}

	out, _, err = runCLI(t, []string{"history", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "Cleared 2 history entries")
}
