// Package config loads, normalizes, and validates the TOML configuration
// shared by the digest daemon and CLI.
package config
