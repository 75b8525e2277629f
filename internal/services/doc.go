// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, work positions, and
//     batch numbers for logging.
//   - Structured error markers plus the Wrap helper that separate catalog
//     retrieval failures from AI backend failures, so callers can decide
//     whether a failure skips one work, degrades one batch, or aborts the run.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
