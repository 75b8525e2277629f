// Package logging assembles structured slog loggers and formatting helpers used
// across the pipeline.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can tag log lines
// with run IDs, stages, and batch positions. A no-op logger is provided for
// tests and for components constructed without a logger.
package logging
