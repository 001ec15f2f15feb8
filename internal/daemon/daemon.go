package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/events"
	"github.com/haikalllp/smoothie-rs-queuer/internal/history"
	"github.com/haikalllp/smoothie-rs-queuer/internal/logging"
	"github.com/haikalllp/smoothie-rs-queuer/internal/notifications"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
	"github.com/haikalllp/smoothie-rs-queuer/internal/smoothie"
	"github.com/haikalllp/smoothie-rs-queuer/internal/worker"
)

// queueFileExtensions lists the container formats smoothie-rs accepts.
var queueFileExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".webm": {},
}

// controllerTick is how often buffered lifecycle events are drained.
const controllerTick = 200 * time.Millisecond

// recentEventCap bounds the event window kept for IPC observation.
const recentEventCap = 100

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	worker   *worker.Manager
	bus      *events.Bus
	notifier notifications.Service
	journal  *history.Store

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	recent []events.Event
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Paused        bool
	Worker        worker.StatusSummary
	Queue         queue.HealthSummary
	LockFilePath  string
	HistoryDBPath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, bus *events.Bus, wk *worker.Manager, journal *history.Store, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || bus == nil || wk == nil {
		return nil, errors.New("daemon requires config, store, bus, and worker manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "squeuerd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		worker:   wk,
		bus:      bus,
		notifier: notifier,
		journal:  journal,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the worker and controller.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another squeuer daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.worker.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start worker: %w", err)
	}
	d.cancel = cancel

	d.wg.Add(1)
	go d.controller(runCtx)

	d.running.Store(true)
	d.logger.Info("squeuer daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.worker.Stop()
	d.wg.Wait()
	d.consumeEvents(context.Background())
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("squeuer daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// controller drains lifecycle events on a short tick, logging each one,
// forwarding terminal outcomes to the notifier, and retaining a bounded
// recent window for IPC observation.
func (d *Daemon) controller(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(controllerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.consumeEvents(ctx)
		}
	}
}

func (d *Daemon) consumeEvents(ctx context.Context) {
	for _, ev := range d.bus.Drain() {
		d.remember(ev)
		d.handleEvent(ctx, ev)
	}
}

func (d *Daemon) remember(ev events.Event) {
	d.mu.Lock()
	d.recent = append(d.recent, ev)
	if len(d.recent) > recentEventCap {
		d.recent = d.recent[len(d.recent)-recentEventCap:]
	}
	d.mu.Unlock()
}

func (d *Daemon) handleEvent(ctx context.Context, ev events.Event) {
	switch ev.Kind {
	case events.KindTaskStarted:
		d.logger.Info("render started", logging.Int64(logging.FieldTaskID, ev.TaskID))
	case events.KindTaskCompleted:
		d.logger.Info("render completed", logging.Int64(logging.FieldTaskID, ev.TaskID))
		if task, ok := d.store.Get(ev.TaskID); ok {
			if err := d.notifier.NotifyTaskCompleted(ctx, task.SourcePath); err != nil {
				d.logger.Warn("notify task completed", logging.Error(err))
			}
		}
	case events.KindTaskFailed:
		d.logger.Warn("render failed",
			logging.Int64(logging.FieldTaskID, ev.TaskID),
			logging.String("reason", ev.Reason),
		)
		if task, ok := d.store.Get(ev.TaskID); ok {
			if err := d.notifier.NotifyTaskFailed(ctx, task.SourcePath, ev.Reason); err != nil {
				d.logger.Warn("notify task failed", logging.Error(err))
			}
		}
	case events.KindQueueIdle:
		d.logger.Info("queue idle")
		if err := d.notifier.NotifyQueueDrained(ctx); err != nil {
			d.logger.Warn("notify queue drained", logging.Error(err))
		}
	}
}

// RecentEvents returns a copy of the retained lifecycle event window.
func (d *Daemon) RecentEvents() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.Event, len(d.recent))
	copy(out, d.recent)
	return out
}

// AddTask validates and enqueues a source file. Empty outputDir and recipe
// fall back to the configured defaults.
func (d *Daemon) AddTask(sourcePath, outputDir, recipe string) (queue.Task, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return queue.Task{}, errors.New("source path required")
	}
	expanded, err := config.ExpandPath(sourcePath)
	if err != nil {
		return queue.Task{}, fmt.Errorf("source path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(expanded))
	if _, ok := queueFileExtensions[ext]; !ok {
		return queue.Task{}, fmt.Errorf("unsupported file type %q", ext)
	}
	if info, err := os.Stat(expanded); err != nil {
		return queue.Task{}, fmt.Errorf("source file: %w", err)
	} else if info.IsDir() {
		return queue.Task{}, fmt.Errorf("source path %s is a directory", expanded)
	}

	if strings.TrimSpace(outputDir) == "" {
		outputDir = d.cfg.Paths.OutputDir
	}
	if strings.TrimSpace(recipe) == "" {
		recipe = d.defaultRecipe()
	}

	task := d.store.Add(expanded, outputDir, recipe)
	d.logger.Info("task queued",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String("source", task.SourcePath),
	)
	return task, nil
}

func (d *Daemon) defaultRecipe() string {
	if recipe := strings.TrimSpace(d.cfg.Smoothie.Recipe); recipe != "" {
		return recipe
	}
	return smoothie.DefaultRecipe(d.cfg.Smoothie.InstallDir)
}

// ListTasks returns a snapshot of the queue in insertion order.
func (d *Daemon) ListTasks() []queue.Task {
	return d.store.List()
}

// RemoveTask removes a task that is not currently running.
func (d *Daemon) RemoveTask(id int64) error {
	return d.store.Remove(id)
}

// ClearTasks removes every task except the running one and reports how many
// were dropped.
func (d *Daemon) ClearTasks() int {
	return d.store.Clear()
}

// Pause suspends or resumes claiming of new tasks.
func (d *Daemon) Pause(paused bool) {
	d.store.RequestPause(paused)
	if paused {
		d.logger.Info("queue paused")
	} else {
		d.logger.Info("queue resumed")
	}
}

// StopCurrent force-stops the running render, if any.
func (d *Daemon) StopCurrent() {
	d.store.RequestStopCurrent()
	d.logger.Info("stop-current requested")
}

// SetRecipe re-targets every pending task to recipe and returns how many
// tasks were updated.
func (d *Daemon) SetRecipe(recipe string) (int, error) {
	recipe = strings.TrimSpace(recipe)
	if recipe == "" {
		return 0, errors.New("recipe path required")
	}
	expanded, err := config.ExpandPath(recipe)
	if err != nil {
		return 0, fmt.Errorf("recipe path: %w", err)
	}
	if _, err := os.Stat(expanded); err != nil {
		return 0, fmt.Errorf("recipe file: %w", err)
	}
	d.cfg.Smoothie.Recipe = expanded
	return d.store.UpdatePendingRecipe(expanded), nil
}

// SetOutputDir re-targets every pending task to outputDir and returns how
// many tasks were updated.
func (d *Daemon) SetOutputDir(outputDir string) (int, error) {
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return 0, errors.New("output directory required")
	}
	expanded, err := config.ExpandPath(outputDir)
	if err != nil {
		return 0, fmt.Errorf("output directory: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}
	d.cfg.Paths.OutputDir = expanded
	return d.store.UpdatePendingOutputDir(expanded), nil
}

// HistoryList returns the most recent journal entries.
func (d *Daemon) HistoryList(ctx context.Context, limit int) ([]*history.Entry, error) {
	if d.journal == nil {
		return nil, errors.New("history journal unavailable")
	}
	return d.journal.List(ctx, limit)
}

// HistoryClear empties the journal and reports how many rows were removed.
func (d *Daemon) HistoryClear(ctx context.Context) (int64, error) {
	if d.journal == nil {
		return 0, errors.New("history journal unavailable")
	}
	return d.journal.Clear(ctx)
}

// Status reports daemon runtime information.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Paused:       d.store.Paused(),
		Worker:       d.worker.Status(),
		Queue:        d.store.Health(),
		LockFilePath: d.lockPath,
	}
	if d.journal != nil {
		status.HistoryDBPath = d.journal.Path()
	}
	return status
}
