package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	stageKey     contextKey = "stage"
	workIndexKey contextKey = "work_index"
	batchKey     contextKey = "batch_index"
)

// WithRunID annotates context with the run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run correlation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithWorkIndex annotates context with the 0-based position of the work being processed.
func WithWorkIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, workIndexKey, index)
}

// WorkIndexFromContext extracts the work position if present.
func WorkIndexFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(workIndexKey).(int)
	return v, ok
}

// WithBatchIndex annotates context with the 0-based matching batch number.
func WithBatchIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, batchKey, index)
}

// BatchIndexFromContext extracts the batch number if present.
func BatchIndexFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(batchKey).(int)
	return v, ok
}
