// Package history journals terminal task outcomes to SQLite.
//
// The live queue is in-memory and intentionally empties on restart; the
// journal is the durable record of what was rendered, when, and how it
// ended. Rows are append-only except for Clear.
package history
