package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/events"
	"github.com/haikalllp/smoothie-rs-queuer/internal/logging"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
	"github.com/haikalllp/smoothie-rs-queuer/internal/smoothie"
)

// stopCheckInterval is how often a running render is checked for a
// force-stop request.
const stopCheckInterval = 100 * time.Millisecond

// Journal records terminal task outcomes. Implemented by history.Store.
type Journal interface {
	Record(ctx context.Context, task *queue.Task) error
}

// Manager coordinates queue processing with a single worker goroutine.
type Manager struct {
	cfg     *config.Config
	store   *queue.Store
	bus     *events.Bus
	client  smoothie.Client
	logger  *slog.Logger
	journal Journal

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastTask *queue.Task
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithJournal attaches an outcome journal.
func WithJournal(journal Journal) Option {
	return func(m *Manager) {
		m.journal = journal
	}
}

// WithIntervals overrides the poll and error-retry intervals (used in tests).
func WithIntervals(poll, errorRetry time.Duration) Option {
	return func(m *Manager) {
		if poll > 0 {
			m.pollInterval = poll
		}
		if errorRetry > 0 {
			m.errorRetryInterval = errorRetry
		}
	}
}

// NewManager constructs a worker manager.
func NewManager(cfg *config.Config, store *queue.Store, bus *events.Bus, client smoothie.Client, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:                cfg,
		store:              store,
		bus:                bus,
		client:             client,
		logger:             logging.NewComponentLogger(logger, "worker"),
		pollInterval:       time.Duration(cfg.Worker.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Worker.ErrorRetryInterval) * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// StatusSummary represents lightweight worker diagnostics.
type StatusSummary struct {
	Running    bool
	LastError  string
	LastTask   *queue.Task
	QueueStats map[queue.Status]int
}

// Status returns the latest worker information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastTask := m.lastTask
	m.mu.RUnlock()

	summary := StatusSummary{Running: running, QueueStats: m.store.Stats()}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastTask != nil {
		cp := *lastTask
		summary.LastTask = &cp
	}
	return summary
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	idleAnnounced := false
	for {
		if ctx.Err() != nil || m.store.StopQueueRequested() {
			return
		}

		task, ok := m.store.NextPending()
		if !ok {
			if !idleAnnounced && !m.store.Paused() && m.store.Stats()[queue.StatusPending] == 0 {
				m.bus.Publish(events.QueueIdle())
				idleAnnounced = true
			}
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}
		idleAnnounced = false

		if !m.processTask(ctx, task) {
			return
		}
	}
}

// processTask runs one claimed task through its full lifecycle. It returns
// false when the loop should exit (shutdown or stop-queue).
func (m *Manager) processTask(ctx context.Context, task queue.Task) bool {
	requestID := uuid.NewString()
	logger := m.logger.With(
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldRequestID, requestID),
	)

	if err := m.store.SetStatus(task.ID, queue.StatusRunning, ""); err != nil {
		m.setLastError(err)
		logger.Error("claim task",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_claim_failed"),
		)
		return m.sleep(ctx, m.errorRetryInterval)
	}
	m.setLastTask(task)
	m.bus.Publish(events.TaskStarted(task.ID))
	logger.Info("task started", logging.String("source", task.SourcePath))

	outcome, reason := m.render(ctx, logger, task)
	m.store.ClearStopCurrent()

	if err := m.store.SetStatus(task.ID, outcome, reason); err != nil {
		m.setLastError(err)
		logger.Error("record task outcome",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_outcome_failed"),
		)
	}
	switch outcome {
	case queue.StatusCompleted:
		m.bus.Publish(events.TaskCompleted(task.ID))
		logger.Info("task completed")
	case queue.StatusFailed:
		m.bus.Publish(events.TaskFailed(task.ID, reason))
		logger.Warn("task failed", logging.String("reason", reason))
	}

	if m.journal != nil {
		if final, ok := m.store.Get(task.ID); ok {
			if err := m.journal.Record(context.Background(), &final); err != nil {
				logger.Warn("journal outcome",
					logging.Error(err),
					logging.String(logging.FieldEventType, "history_record_failed"),
				)
			}
		}
	}

	// A stop-queue request abandons whatever was in flight and ends the loop.
	if m.store.StopQueueRequested() || ctx.Err() != nil {
		return false
	}
	return true
}

// render invokes smoothie-rs and supervises it, cancelling the run when a
// force-stop or stop-queue arrives or the loop context ends. It returns
// the terminal status and failure reason for the task.
func (m *Manager) render(ctx context.Context, logger *slog.Logger, task queue.Task) (queue.Status, string) {
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	job := smoothie.Job{
		Input:     task.SourcePath,
		OutputDir: task.OutputDir,
		Recipe:    task.Recipe,
	}
	done := make(chan error, 1)
	go func() {
		done <- m.client.Render(runCtx, job, func(line string) {
			logger.Debug("smoothie output", logging.String("line", line))
		})
	}()

	ticker := time.NewTicker(stopCheckInterval)
	defer ticker.Stop()

	cancelled := false
	for {
		select {
		case err := <-done:
			if cancelled {
				return queue.StatusFailed, queue.CancelledReason
			}
			if err != nil {
				m.setLastError(err)
				return queue.StatusFailed, err.Error()
			}
			return queue.StatusCompleted, ""
		case <-ticker.C:
			if cancelled {
				continue
			}
			if m.store.StopCurrentRequested() || m.store.StopQueueRequested() || ctx.Err() != nil {
				logger.Info("stopping render",
					logging.String(logging.FieldEventType, "render_force_stop"),
				)
				cancelled = true
				cancelRun()
			}
		}
	}
}

// sleep waits for d or until ctx ends; it returns false on shutdown.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastTask(task queue.Task) {
	m.mu.Lock()
	m.lastTask = &task
	m.mu.Unlock()
}

// Describe returns a short human-readable loop configuration, used in the
// daemon startup log line.
func (m *Manager) Describe() string {
	return fmt.Sprintf("poll=%s retry=%s", m.pollInterval, m.errorRetryInterval)
}
