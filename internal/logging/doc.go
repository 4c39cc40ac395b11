// Package logging builds slog loggers for the digest daemon and CLI and
// defines the standardized structured attribute vocabulary used across
// components.
package logging
