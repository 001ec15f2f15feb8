package queue

import "errors"

// ErrInvalidTransition indicates a status change that violates the task
// lifecycle. It is a programming-level fault: the operation is rejected and
// queue state is left unchanged.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrTaskBusy indicates an attempt to remove a task that is currently
// running. The task can be cancelled first and removed once terminal.
var ErrTaskBusy = errors.New("task is running")

// ErrNotFound indicates the referenced task does not exist in the queue.
var ErrNotFound = errors.New("task not found")
