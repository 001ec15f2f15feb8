// Package config loads, normalizes, and validates the TOML configuration
// shared by the squeuer CLI and the squeuerd daemon.
package config
