package queue

import (
	"fmt"
	"sync"
	"time"
)

// Store serializes every read and write of the task list and the cooperative
// control flags behind one mutex. Methods complete in bounded time; the lock
// is never held across blocking work, and callers only ever receive copies.
type Store struct {
	mu     sync.Mutex
	tasks  []*Task
	nextID int64

	paused      bool
	stopQueue   bool
	stopCurrent bool
}

// NewStore constructs an empty queue store.
func NewStore() *Store {
	return &Store{nextID: 1}
}

// Add appends a new pending task and returns a copy of it.
func (s *Store) Add(sourcePath, outputDir, recipe string) Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	task := &Task{
		ID:         s.nextID,
		SourcePath: sourcePath,
		OutputDir:  outputDir,
		Recipe:     recipe,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.nextID++
	s.tasks = append(s.tasks, task)
	return *task
}

// List returns a snapshot of all tasks in insertion order.
func (s *Store) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, len(s.tasks))
	for i, task := range s.tasks {
		out[i] = *task
	}
	return out
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id int64) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task := s.findLocked(id); task != nil {
		return *task, true
	}
	return Task{}, false
}

// NextPending returns a copy of the first pending task in insertion order.
// It returns false when nothing is pending or the queue is paused. The task
// is not claimed; the caller transitions it via SetStatus.
func (s *Store) NextPending() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return Task{}, false
	}
	for _, task := range s.tasks {
		if task.Status == StatusPending {
			return *task, true
		}
	}
	return Task{}, false
}

// SetStatus transitions a task to a new status, enforcing the monotonic
// lifecycle and the single-running invariant. errorMessage is recorded on
// transitions to failed and ignored otherwise.
func (s *Store) SetStatus(id int64, status Status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.findLocked(id)
	if task == nil {
		return fmt.Errorf("set status for task %d: %w", id, ErrNotFound)
	}
	if err := s.validateTransitionLocked(task, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	task.Status = status
	task.UpdatedAt = now
	switch status {
	case StatusRunning:
		task.StartedAt = &now
		task.ErrorMessage = ""
	case StatusFailed:
		task.FinishedAt = &now
		task.ErrorMessage = errorMessage
	case StatusCompleted:
		task.FinishedAt = &now
		task.ErrorMessage = ""
	}
	return nil
}

func (s *Store) validateTransitionLocked(task *Task, to Status) error {
	from := task.Status
	if from.IsTerminal() {
		return fmt.Errorf("task %d is already %s: %w", task.ID, from, ErrInvalidTransition)
	}
	switch to {
	case StatusRunning:
		if from != StatusPending {
			return fmt.Errorf("task %d cannot run from %s: %w", task.ID, from, ErrInvalidTransition)
		}
		for _, other := range s.tasks {
			if other.ID != task.ID && other.Status == StatusRunning {
				return fmt.Errorf("task %d is already running: %w", other.ID, ErrInvalidTransition)
			}
		}
	case StatusCompleted, StatusFailed:
		if from != StatusRunning {
			return fmt.Errorf("task %d cannot finish from %s: %w", task.ID, from, ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("task %d cannot return to %s: %w", task.ID, to, ErrInvalidTransition)
	}
	return nil
}

// Remove deletes a task by id. A running task cannot be removed; cancel it
// first and remove it once terminal.
func (s *Store) Remove(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, task := range s.tasks {
		if task.ID != id {
			continue
		}
		if task.Status == StatusRunning {
			return fmt.Errorf("remove task %d: %w", id, ErrTaskBusy)
		}
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		return nil
	}
	return fmt.Errorf("remove task %d: %w", id, ErrNotFound)
}

// Clear removes every task that is not currently running and returns the
// number removed. A running task stays, in place, and becomes removable once
// it terminates.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tasks[:0]
	removed := 0
	for _, task := range s.tasks {
		if task.Status == StatusRunning {
			kept = append(kept, task)
			continue
		}
		removed++
	}
	s.tasks = kept
	return removed
}

// UpdatePendingRecipe re-targets all still-pending tasks at a new recipe and
// returns the number of tasks updated.
func (s *Store) UpdatePendingRecipe(recipe string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	now := time.Now().UTC()
	for _, task := range s.tasks {
		if task.Status == StatusPending {
			task.Recipe = recipe
			task.UpdatedAt = now
			updated++
		}
	}
	return updated
}

// UpdatePendingOutputDir re-targets all still-pending tasks at a new output
// directory and returns the number of tasks updated.
func (s *Store) UpdatePendingOutputDir(outputDir string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	now := time.Now().UTC()
	for _, task := range s.tasks {
		if task.Status == StatusPending {
			task.OutputDir = outputDir
			task.UpdatedAt = now
			updated++
		}
	}
	return updated
}

// RequestPause sets or clears the pause flag. While paused the worker does
// not begin new tasks; a task already running is unaffected.
func (s *Store) RequestPause(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

// Paused reports whether the pause flag is set.
func (s *Store) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// RequestStopQueue sets the queue-wide stop flag. The worker loop observes it
// at its next checkpoint and exits, abandoning any in-flight task.
func (s *Store) RequestStopQueue() {
	s.mu.Lock()
	s.stopQueue = true
	s.mu.Unlock()
}

// StopQueueRequested reports whether queue shutdown has been requested.
func (s *Store) StopQueueRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopQueue
}

// RequestStopCurrent asks the worker to force-terminate the in-flight task.
// Idempotent; a no-op when nothing is running by the time the worker checks.
func (s *Store) RequestStopCurrent() {
	s.mu.Lock()
	s.stopCurrent = true
	s.mu.Unlock()
}

// StopCurrentRequested reports whether a force-stop of the in-flight task is
// pending.
func (s *Store) StopCurrentRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCurrent
}

// ClearStopCurrent resets the force-stop flag. The worker calls this after
// each task so a late request cannot leak into the next one.
func (s *Store) ClearStopCurrent() {
	s.mu.Lock()
	s.stopCurrent = false
	s.mu.Unlock()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[Status]int, len(allStatuses))
	for _, task := range s.tasks {
		stats[task.Status]++
	}
	return stats
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health() HealthSummary {
	stats := s.Stats()
	return HealthSummary{
		Total:     stats[StatusPending] + stats[StatusRunning] + stats[StatusCompleted] + stats[StatusFailed],
		Pending:   stats[StatusPending],
		Running:   stats[StatusRunning],
		Completed: stats[StatusCompleted],
		Failed:    stats[StatusFailed],
	}
}

func (s *Store) findLocked(id int64) *Task {
	for _, task := range s.tasks {
		if task.ID == id {
			return task
		}
	}
	return nil
}
