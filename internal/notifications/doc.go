// Package notifications pushes queue lifecycle updates to ntfy.
package notifications
