package logging

import (
	"context"
	"log/slog"

	"bgmrules/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one pipeline invocation.
	FieldRunID = "run_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldWorkIndex is the position of a work in the input listing.
	FieldWorkIndex = "work_index"
	// FieldBatchIndex is the zero-based position of a match batch.
	FieldBatchIndex = "batch_index"
	FieldEventType  = "event_type"
	FieldErrorHint  = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact       = "impact"
	FieldDecisionType = "decision_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if idx, ok := services.WorkIndexFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldWorkIndex, idx))
	}
	if idx, ok := services.BatchIndexFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldBatchIndex, idx))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
