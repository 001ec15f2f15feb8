// Package worker runs the queue-draining loop.
//
// A single goroutine claims the oldest pending task, renders it through
// smoothie-rs, records the outcome, and publishes lifecycle events. The
// loop is long-lived: an empty or paused queue puts it to sleep for the
// poll interval rather than exiting. One task failing never stops the
// loop; only a stop-queue request or context cancellation does.
package worker
