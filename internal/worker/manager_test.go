package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haikalllp/smoothie-rs-queuer/internal/events"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
	"github.com/haikalllp/smoothie-rs-queuer/internal/smoothie"
	"github.com/haikalllp/smoothie-rs-queuer/internal/testsupport"
	"github.com/haikalllp/smoothie-rs-queuer/internal/worker"
)

type stubClient struct {
	mu     sync.Mutex
	jobs   []smoothie.Job
	handle func(ctx context.Context, job smoothie.Job) error
}

func (s *stubClient) Render(ctx context.Context, job smoothie.Job, _ func(string)) error {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	handle := s.handle
	s.mu.Unlock()
	if handle != nil {
		return handle(ctx, job)
	}
	return nil
}

func (s *stubClient) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type memoryJournal struct {
	mu    sync.Mutex
	tasks []queue.Task
}

func (j *memoryJournal) Record(_ context.Context, task *queue.Task) error {
	j.mu.Lock()
	j.tasks = append(j.tasks, *task)
	j.mu.Unlock()
	return nil
}

func newManager(t *testing.T, store *queue.Store, bus *events.Bus, client smoothie.Client, opts ...worker.Option) *worker.Manager {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	opts = append([]worker.Option{worker.WithIntervals(10*time.Millisecond, 10*time.Millisecond)}, opts...)
	return worker.NewManager(cfg, store, bus, client, nil, opts...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func allTerminal(store *queue.Store) func() bool {
	return func() bool {
		for _, task := range store.List() {
			if !task.Status.IsTerminal() {
				return false
			}
		}
		return true
	}
}

func TestRoundTripCompletesInOrder(t *testing.T) {
	store := queue.NewStore()
	bus := events.NewBus()
	client := &stubClient{}
	mgr := newManager(t, store, bus, client)

	task1 := store.Add("/videos/a.mp4", "/out", "/recipes/r.ini")
	task2 := store.Add("/videos/b.mp4", "/out", "/recipes/r.ini")
	task3 := store.Add("/videos/c.mp4", "/out", "/recipes/r.ini")

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	waitFor(t, 5*time.Second, allTerminal(store), "all tasks terminal")

	for _, id := range []int64{task1.ID, task2.ID, task3.ID} {
		task, ok := store.Get(id)
		if !ok || task.Status != queue.StatusCompleted {
			t.Fatalf("task %d status = %v", id, task.Status)
		}
		if task.StartedAt == nil || task.FinishedAt == nil {
			t.Fatalf("task %d missing timestamps", id)
		}
	}

	drained := bus.Drain()
	var lifecycle []events.Event
	for _, ev := range drained {
		if ev.Kind == events.KindTaskStarted || ev.Kind == events.KindTaskCompleted {
			lifecycle = append(lifecycle, ev)
		}
	}
	wantIDs := []int64{task1.ID, task1.ID, task2.ID, task2.ID, task3.ID, task3.ID}
	wantKinds := []events.Kind{
		events.KindTaskStarted, events.KindTaskCompleted,
		events.KindTaskStarted, events.KindTaskCompleted,
		events.KindTaskStarted, events.KindTaskCompleted,
	}
	if len(lifecycle) != len(wantIDs) {
		t.Fatalf("lifecycle events = %d, want %d (%v)", len(lifecycle), len(wantIDs), lifecycle)
	}
	for i, ev := range lifecycle {
		if ev.TaskID != wantIDs[i] || ev.Kind != wantKinds[i] {
			t.Fatalf("event[%d] = %s task %d, want %s task %d", i, ev.Kind, ev.TaskID, wantKinds[i], wantIDs[i])
		}
	}
}

func TestFailureDoesNotStopLoop(t *testing.T) {
	store := queue.NewStore()
	bus := events.NewBus()
	boom := errors.New("render exploded")
	client := &stubClient{handle: func(_ context.Context, job smoothie.Job) error {
		if job.Input == "/videos/bad.mp4" {
			return boom
		}
		return nil
	}}
	mgr := newManager(t, store, bus, client)

	bad := store.Add("/videos/bad.mp4", "/out", "/recipes/r.ini")
	good := store.Add("/videos/good.mp4", "/out", "/recipes/r.ini")

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	waitFor(t, 5*time.Second, allTerminal(store), "all tasks terminal")

	badTask, _ := store.Get(bad.ID)
	if badTask.Status != queue.StatusFailed || badTask.ErrorMessage == "" {
		t.Fatalf("bad task = %v %q", badTask.Status, badTask.ErrorMessage)
	}
	goodTask, _ := store.Get(good.ID)
	if goodTask.Status != queue.StatusCompleted {
		t.Fatalf("good task = %v", goodTask.Status)
	}
}

func TestForceStopCancelsOnlyCurrentTask(t *testing.T) {
	store := queue.NewStore()
	bus := events.NewBus()
	started := make(chan struct{})
	var once sync.Once
	client := &stubClient{handle: func(ctx context.Context, job smoothie.Job) error {
		if job.Input == "/videos/slow.mp4" {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}}
	mgr := newManager(t, store, bus, client)

	slow := store.Add("/videos/slow.mp4", "/out", "/recipes/r.ini")
	next := store.Add("/videos/next.mp4", "/out", "/recipes/r.ini")

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	<-started
	store.RequestStopCurrent()

	waitFor(t, 5*time.Second, allTerminal(store), "all tasks terminal")

	slowTask, _ := store.Get(slow.ID)
	if !slowTask.IsCancelled() {
		t.Fatalf("slow task = %v %q, want cancelled", slowTask.Status, slowTask.ErrorMessage)
	}
	nextTask, _ := store.Get(next.ID)
	if nextTask.Status != queue.StatusCompleted {
		t.Fatalf("next task = %v, want completed", nextTask.Status)
	}
	if store.StopCurrentRequested() {
		t.Fatal("stop-current flag not cleared")
	}
}

func TestPauseBlocksNewStarts(t *testing.T) {
	store := queue.NewStore()
	bus := events.NewBus()
	client := &stubClient{}
	mgr := newManager(t, store, bus, client)

	task := store.Add("/videos/a.mp4", "/out", "/recipes/r.ini")
	store.RequestPause(true)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	time.Sleep(100 * time.Millisecond)
	if got, _ := store.Get(task.ID); got.Status != queue.StatusPending {
		t.Fatalf("task status while paused = %v", got.Status)
	}
	if client.jobCount() != 0 {
		t.Fatal("client invoked while paused")
	}

	store.RequestPause(false)
	waitFor(t, 5*time.Second, allTerminal(store), "task terminal after resume")
	if got, _ := store.Get(task.ID); got.Status != queue.StatusCompleted {
		t.Fatalf("task status after resume = %v", got.Status)
	}
}

func TestStopQueueAbandonsInFlightTask(t *testing.T) {
	store := queue.NewStore()
	bus := events.NewBus()
	started := make(chan struct{})
	var once sync.Once
	client := &stubClient{handle: func(ctx context.Context, job smoothie.Job) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}}
	mgr := newManager(t, store, bus, client)

	running := store.Add("/videos/a.mp4", "/out", "/recipes/r.ini")
	pending := store.Add("/videos/b.mp4", "/out", "/recipes/r.ini")

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	<-started
	store.RequestStopQueue()

	waitFor(t, 5*time.Second, func() bool {
		task, _ := store.Get(running.ID)
		return task.Status.IsTerminal()
	}, "in-flight task terminal")
	mgr.Stop()

	runningTask, _ := store.Get(running.ID)
	if !runningTask.IsCancelled() {
		t.Fatalf("in-flight task = %v %q, want cancelled", runningTask.Status, runningTask.ErrorMessage)
	}
	pendingTask, _ := store.Get(pending.ID)
	if pendingTask.Status != queue.StatusPending {
		t.Fatalf("pending task = %v, want untouched", pendingTask.Status)
	}
	if client.jobCount() != 1 {
		t.Fatalf("client invoked %d times, want 1", client.jobCount())
	}
}

func TestQueueIdlePublishedOncePerTransition(t *testing.T) {
	store := queue.NewStore()
	bus := events.NewBus()
	client := &stubClient{}
	mgr := newManager(t, store, bus, client)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	waitFor(t, 5*time.Second, func() bool { return bus.Len() > 0 }, "idle event")
	time.Sleep(100 * time.Millisecond)

	idle := 0
	for _, ev := range bus.Drain() {
		if ev.Kind == events.KindQueueIdle {
			idle++
		}
	}
	if idle != 1 {
		t.Fatalf("idle events = %d, want 1", idle)
	}

	// Running a task and draining again yields exactly one more.
	task := store.Add("/videos/a.mp4", "/out", "/recipes/r.ini")
	waitFor(t, 5*time.Second, func() bool {
		got, _ := store.Get(task.ID)
		return got.Status.IsTerminal()
	}, "task terminal")
	waitFor(t, 5*time.Second, func() bool {
		for _, ev := range bus.Drain() {
			if ev.Kind == events.KindQueueIdle {
				return true
			}
		}
		return false
	}, "second idle event")
}

func TestJournalReceivesTerminalOutcomes(t *testing.T) {
	store := queue.NewStore()
	bus := events.NewBus()
	journal := &memoryJournal{}
	client := &stubClient{}
	mgr := newManager(t, store, bus, client, worker.WithJournal(journal))

	task := store.Add("/videos/a.mp4", "/out", "/recipes/r.ini")

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	waitFor(t, 5*time.Second, allTerminal(store), "task terminal")
	waitFor(t, time.Second, func() bool {
		journal.mu.Lock()
		defer journal.mu.Unlock()
		return len(journal.tasks) == 1
	}, "journal entry")

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if journal.tasks[0].ID != task.ID || journal.tasks[0].Status != queue.StatusCompleted {
		t.Fatalf("journal entry = %+v", journal.tasks[0])
	}
}
