// Package queue owns the in-memory task list and the cooperative control
// flags shared between the interactive surface and the worker loop.
//
// The Store is the single source of truth: both sides go through its
// lock-protected methods and only ever see copies of tasks, never live
// references. All lifecycle invariants (FIFO order, monotonic status
// transitions, at most one running task) are enforced here and nowhere else.
//
// Queue state is deliberately not persisted; a restart starts empty. The
// history package journals terminal outcomes separately.
package queue
