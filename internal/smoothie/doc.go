// Package smoothie drives the external smoothie-rs executable.
//
// The daemon never links against smoothie-rs; every render is a child
// process launched with --recipe/--input/--outdir. The Client interface
// exists so the worker loop can be tested against a stub without
// spawning real processes.
package smoothie
