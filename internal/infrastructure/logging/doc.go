// Package logging provides structured logging for FieldComm Core.
//
// This package wraps the standard library's log/slog with:
//   - Configuration-driven level, format, and output selection
//   - Default service and version attributes on every record
//   - Child loggers scoped to a component via With
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	srcLog := log.With("source", "mqtt-primary")
//	srcLog.Warn("decode failed", "error", err)
package logging
