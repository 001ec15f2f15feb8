package queue_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
)

func addTask(t *testing.T, store *queue.Store, name string) queue.Task {
	t.Helper()
	return store.Add("/videos/"+name+".mp4", "/videos/out", "/smoothie/recipe.ini")
}

func TestAddAssignsSequentialIDs(t *testing.T) {
	store := queue.NewStore()
	first := addTask(t, store, "first")
	second := addTask(t, store, "second")
	if first.ID == 0 || second.ID == 0 {
		t.Fatal("expected task IDs to be assigned")
	}
	if second.ID <= first.ID {
		t.Fatalf("expected increasing IDs, got %d then %d", first.ID, second.ID)
	}
	if first.Status != queue.StatusPending {
		t.Fatalf("expected new task pending, got %s", first.Status)
	}
}

func TestNextPendingRespectsInsertionOrder(t *testing.T) {
	store := queue.NewStore()
	var ids []int64
	for i := 0; i < 4; i++ {
		task := addTask(t, store, fmt.Sprintf("clip-%d", i))
		ids = append(ids, task.ID)
	}

	for _, want := range ids {
		next, ok := store.NextPending()
		if !ok {
			t.Fatalf("expected pending task %d", want)
		}
		if next.ID != want {
			t.Fatalf("expected task %d next, got %d", want, next.ID)
		}
		if err := store.SetStatus(next.ID, queue.StatusRunning, ""); err != nil {
			t.Fatalf("SetStatus running: %v", err)
		}
		if err := store.SetStatus(next.ID, queue.StatusCompleted, ""); err != nil {
			t.Fatalf("SetStatus completed: %v", err)
		}
	}

	if _, ok := store.NextPending(); ok {
		t.Fatal("expected no pending tasks left")
	}
}

func TestNextPendingSkipsTerminalTasks(t *testing.T) {
	store := queue.NewStore()
	first := addTask(t, store, "first")
	second := addTask(t, store, "second")

	if err := store.SetStatus(first.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}
	if err := store.SetStatus(first.ID, queue.StatusFailed, "boom"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	next, ok := store.NextPending()
	if !ok || next.ID != second.ID {
		t.Fatalf("expected task %d next, got %+v ok=%v", second.ID, next, ok)
	}
}

func TestNextPendingReturnsNothingWhilePaused(t *testing.T) {
	store := queue.NewStore()
	addTask(t, store, "clip")

	store.RequestPause(true)
	if _, ok := store.NextPending(); ok {
		t.Fatal("expected no task while paused")
	}

	store.RequestPause(false)
	if _, ok := store.NextPending(); !ok {
		t.Fatal("expected pending task after resume")
	}
}

func TestSetStatusEnforcesSingleRunning(t *testing.T) {
	store := queue.NewStore()
	first := addTask(t, store, "first")
	second := addTask(t, store, "second")

	if err := store.SetStatus(first.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}
	err := store.SetStatus(second.ID, queue.StatusRunning, "")
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	stats := store.Stats()
	if stats[queue.StatusRunning] != 1 {
		t.Fatalf("expected exactly one running task, got %d", stats[queue.StatusRunning])
	}
}

func TestSetStatusRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		via  []queue.Status
		to   queue.Status
	}{
		{"pending to completed", nil, queue.StatusCompleted},
		{"pending to failed", nil, queue.StatusFailed},
		{"pending to pending", nil, queue.StatusPending},
		{"completed to running", []queue.Status{queue.StatusRunning, queue.StatusCompleted}, queue.StatusRunning},
		{"failed to pending", []queue.Status{queue.StatusRunning, queue.StatusFailed}, queue.StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := queue.NewStore()
			task := addTask(t, store, "clip")
			for _, status := range tc.via {
				if err := store.SetStatus(task.ID, status, "setup"); err != nil {
					t.Fatalf("setup transition to %s: %v", status, err)
				}
			}
			if err := store.SetStatus(task.ID, tc.to, ""); !errors.Is(err, queue.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestSetStatusUnknownTask(t *testing.T) {
	store := queue.NewStore()
	if err := store.SetStatus(99, queue.StatusRunning, ""); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveRefusesRunningTask(t *testing.T) {
	store := queue.NewStore()
	task := addTask(t, store, "clip")
	if err := store.SetStatus(task.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}

	if err := store.Remove(task.ID); !errors.Is(err, queue.ErrTaskBusy) {
		t.Fatalf("expected ErrTaskBusy, got %v", err)
	}
	if len(store.List()) != 1 {
		t.Fatal("running task must not be removed")
	}

	if err := store.SetStatus(task.ID, queue.StatusFailed, queue.CancelledReason); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := store.Remove(task.ID); err != nil {
		t.Fatalf("Remove after terminal: %v", err)
	}
	if len(store.List()) != 0 {
		t.Fatal("expected empty queue after removal")
	}
}

func TestRemoveShrinksQueueByOne(t *testing.T) {
	store := queue.NewStore()
	first := addTask(t, store, "first")
	second := addTask(t, store, "second")

	if err := store.Remove(first.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	tasks := store.List()
	if len(tasks) != 1 || tasks[0].ID != second.ID {
		t.Fatalf("unexpected queue after removal: %+v", tasks)
	}
}

func TestClearKeepsRunningTask(t *testing.T) {
	store := queue.NewStore()
	done := addTask(t, store, "done")
	running := addTask(t, store, "running")
	addTask(t, store, "pending")

	if err := store.SetStatus(done.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}
	if err := store.SetStatus(done.ID, queue.StatusCompleted, ""); err != nil {
		t.Fatalf("SetStatus completed: %v", err)
	}
	if err := store.SetStatus(running.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}

	removed := store.Clear()
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	tasks := store.List()
	if len(tasks) != 1 || tasks[0].ID != running.ID || tasks[0].Status != queue.StatusRunning {
		t.Fatalf("expected only the running task to survive, got %+v", tasks)
	}
}

func TestClearPreservesRelativeOrderOfRunning(t *testing.T) {
	store := queue.NewStore()
	addTask(t, store, "a")
	b := addTask(t, store, "b")
	addTask(t, store, "c")

	if err := store.SetStatus(b.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}
	store.Clear()

	tasks := store.List()
	if len(tasks) != 1 || tasks[0].ID != b.ID {
		t.Fatalf("expected [%d], got %+v", b.ID, tasks)
	}
}

func TestUpdatePendingRecipeAndOutputDir(t *testing.T) {
	store := queue.NewStore()
	running := addTask(t, store, "running")
	addTask(t, store, "pending-1")
	addTask(t, store, "pending-2")
	if err := store.SetStatus(running.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}

	if updated := store.UpdatePendingRecipe("/smoothie/recipes/hfr.ini"); updated != 2 {
		t.Fatalf("expected 2 recipes updated, got %d", updated)
	}
	if updated := store.UpdatePendingOutputDir("/videos/new-out"); updated != 2 {
		t.Fatalf("expected 2 output dirs updated, got %d", updated)
	}

	for _, task := range store.List() {
		switch task.Status {
		case queue.StatusRunning:
			if task.Recipe != "/smoothie/recipe.ini" {
				t.Fatalf("running task recipe must not change, got %s", task.Recipe)
			}
		case queue.StatusPending:
			if task.Recipe != "/smoothie/recipes/hfr.ini" || task.OutputDir != "/videos/new-out" {
				t.Fatalf("pending task not re-targeted: %+v", task)
			}
		}
	}
}

func TestStopCurrentFlagRoundTrip(t *testing.T) {
	store := queue.NewStore()
	if store.StopCurrentRequested() {
		t.Fatal("flag must start clear")
	}
	store.RequestStopCurrent()
	store.RequestStopCurrent()
	if !store.StopCurrentRequested() {
		t.Fatal("flag must be set")
	}
	store.ClearStopCurrent()
	if store.StopCurrentRequested() {
		t.Fatal("flag must be clear again")
	}
}

func TestHealthCounts(t *testing.T) {
	store := queue.NewStore()
	a := addTask(t, store, "a")
	addTask(t, store, "b")
	if err := store.SetStatus(a.ID, queue.StatusRunning, ""); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}

	health := store.Health()
	if health.Total != 2 || health.Running != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}

func TestListReturnsCopies(t *testing.T) {
	store := queue.NewStore()
	task := addTask(t, store, "clip")

	tasks := store.List()
	tasks[0].Status = queue.StatusCompleted

	got, ok := store.Get(task.ID)
	if !ok || got.Status != queue.StatusPending {
		t.Fatalf("mutating a snapshot must not affect the store, got %+v", got)
	}
}
