// Package events carries lifecycle messages from the worker loop to the
// controlling surface over an ordered, unbounded, single-producer conduit.
package events

import (
	"sync"
	"time"
)

// Kind enumerates lifecycle event types.
type Kind string

const (
	KindTaskStarted   Kind = "task_started"
	KindTaskCompleted Kind = "task_completed"
	KindTaskFailed    Kind = "task_failed"
	KindQueueIdle     Kind = "queue_idle"
)

// Event is one lifecycle message. TaskID is zero for queue-level events;
// Reason is set only on failures.
type Event struct {
	Kind   Kind
	TaskID int64
	Reason string
	At     time.Time
}

// TaskStarted builds a start event for a task.
func TaskStarted(taskID int64) Event {
	return Event{Kind: KindTaskStarted, TaskID: taskID, At: time.Now().UTC()}
}

// TaskCompleted builds a completion event for a task.
func TaskCompleted(taskID int64) Event {
	return Event{Kind: KindTaskCompleted, TaskID: taskID, At: time.Now().UTC()}
}

// TaskFailed builds a failure event carrying a human-readable reason.
func TaskFailed(taskID int64, reason string) Event {
	return Event{Kind: KindTaskFailed, TaskID: taskID, Reason: reason, At: time.Now().UTC()}
}

// QueueIdle builds the event emitted when a poll finds nothing to run.
func QueueIdle() Event {
	return Event{Kind: KindQueueIdle, At: time.Now().UTC()}
}

// Bus buffers events without bound and preserves publish order. Publish
// never blocks; the consumer drains whatever is available on its own tick.
// Volume is bounded in practice by task count, so no backpressure is needed.
type Bus struct {
	mu      sync.Mutex
	pending []Event
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish appends an event to the bus.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	b.pending = append(b.pending, event)
	b.mu.Unlock()
}

// Drain returns all buffered events in publish order and empties the bus.
// It never blocks; an empty bus yields nil.
func (b *Bus) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}

// Len reports the number of buffered events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
