package ipc

import (
	"time"

	"github.com/haikalllp/smoothie-rs-queuer/internal/events"
	"github.com/haikalllp/smoothie-rs-queuer/internal/history"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
)

// Task is the wire representation of a queued task.
type Task struct {
	ID           int64      `json:"id"`
	SourcePath   string     `json:"source_path"`
	OutputDir    string     `json:"output_dir"`
	Recipe       string     `json:"recipe"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Cancelled    bool       `json:"cancelled,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func fromTask(task queue.Task) Task {
	return Task{
		ID:           task.ID,
		SourcePath:   task.SourcePath,
		OutputDir:    task.OutputDir,
		Recipe:       task.Recipe,
		Status:       string(task.Status),
		ErrorMessage: task.ErrorMessage,
		Cancelled:    task.IsCancelled(),
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		StartedAt:    task.StartedAt,
		FinishedAt:   task.FinishedAt,
	}
}

// Event is the wire representation of a lifecycle event.
type Event struct {
	Kind   string    `json:"kind"`
	TaskID int64     `json:"task_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func fromEvent(ev events.Event) Event {
	return Event{
		Kind:   string(ev.Kind),
		TaskID: ev.TaskID,
		Reason: ev.Reason,
		At:     ev.At,
	}
}

// HistoryEntry is the wire representation of a journaled outcome.
type HistoryEntry struct {
	ID           int64      `json:"id"`
	TaskID       int64      `json:"task_id"`
	SourcePath   string     `json:"source_path"`
	OutputDir    string     `json:"output_dir"`
	Recipe       string     `json:"recipe"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	RecordedAt   time.Time  `json:"recorded_at"`
}

func fromHistoryEntry(entry *history.Entry) HistoryEntry {
	return HistoryEntry{
		ID:           entry.ID,
		TaskID:       entry.TaskID,
		SourcePath:   entry.SourcePath,
		OutputDir:    entry.OutputDir,
		Recipe:       entry.Recipe,
		Status:       string(entry.Status),
		ErrorMessage: entry.ErrorMessage,
		StartedAt:    entry.StartedAt,
		FinishedAt:   entry.FinishedAt,
		RecordedAt:   entry.RecordedAt,
	}
}

// StartRequest triggers daemon processing startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/worker status information.
type StatusResponse struct {
	Running       bool           `json:"running"`
	Paused        bool           `json:"paused"`
	QueueStats    map[string]int `json:"queue_stats"`
	LastError     string         `json:"last_error,omitempty"`
	LastTask      *Task          `json:"last_task,omitempty"`
	LockPath      string         `json:"lock_path"`
	HistoryDBPath string         `json:"history_db_path,omitempty"`
	PID           int            `json:"pid"`
}

// QueueAddRequest enqueues a source file.
type QueueAddRequest struct {
	SourcePath string `json:"source_path"`
	OutputDir  string `json:"output_dir,omitempty"`
	Recipe     string `json:"recipe,omitempty"`
}

// QueueAddResponse returns the created task.
type QueueAddResponse struct {
	Task Task `json:"task"`
}

// QueueListRequest fetches the queue snapshot.
type QueueListRequest struct{}

// QueueListResponse contains queue entries in insertion order.
type QueueListResponse struct {
	Tasks []Task `json:"tasks"`
}

// QueueRemoveRequest removes one task by ID.
type QueueRemoveRequest struct {
	ID int64 `json:"id"`
}

// QueueRemoveResponse acknowledges removal.
type QueueRemoveResponse struct {
	Removed bool `json:"removed"`
}

// QueueClearRequest removes every task except a running one.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int `json:"removed"`
}

// PauseRequest suspends or resumes claiming of new tasks.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// PauseResponse echoes the resulting pause state.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// StopCurrentRequest force-stops the running render.
type StopCurrentRequest struct{}

// StopCurrentResponse acknowledges the request.
type StopCurrentResponse struct {
	Requested bool `json:"requested"`
}

// SetRecipeRequest re-targets pending tasks to a recipe.
type SetRecipeRequest struct {
	Recipe string `json:"recipe"`
}

// SetRecipeResponse reports how many tasks were updated.
type SetRecipeResponse struct {
	Updated int `json:"updated"`
}

// SetOutputDirRequest re-targets pending tasks to an output directory.
type SetOutputDirRequest struct {
	OutputDir string `json:"output_dir"`
}

// SetOutputDirResponse reports how many tasks were updated.
type SetOutputDirResponse struct {
	Updated int `json:"updated"`
}

// EventsRequest fetches the recent lifecycle event window.
type EventsRequest struct{}

// EventsResponse contains retained events in publish order.
type EventsResponse struct {
	Events []Event `json:"events"`
}

// HistoryListRequest fetches journaled outcomes, newest first.
type HistoryListRequest struct {
	Limit int `json:"limit"`
}

// HistoryListResponse contains journal entries.
type HistoryListResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// HistoryClearRequest empties the outcome journal.
type HistoryClearRequest struct{}

// HistoryClearResponse reports number of removed rows.
type HistoryClearResponse struct {
	Removed int64 `json:"removed"`
}
