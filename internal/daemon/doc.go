// Package daemon coordinates the queue store, worker loop, and event
// controller behind a single-instance lock, and exposes the methods the
// IPC surface calls into.
package daemon
