// Package logging assembles the structured slog loggers used across modvault
// components.
//
// It centralizes level and output plumbing and exposes attribute helpers so
// transport, cache, and download code tag log lines with the same field names.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
