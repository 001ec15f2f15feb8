// Package ipc exposes daemon control via JSON-RPC over a Unix domain
// socket. The CLI is the only intended client; requests and responses
// are small typed structs so both sides stay in lockstep.
package ipc
