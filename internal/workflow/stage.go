package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bgmrules/internal/logging"
	"bgmrules/internal/services"
)

// Stage names in execution order.
const (
	StageListing    = "listing"
	StageSelection  = "table_selection"
	StageCleaning   = "cleaning"
	StageResolution = "resolution"
	StageResults    = "results"
	StageRules      = "rules"
)

// StageError reports which stage of a run failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (m *Manager) runStage(ctx context.Context, name string, fn func(context.Context) error) error {
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, m.logger)
	start := time.Now()
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	if err := fn(stageCtx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return err
		}
		logging.ErrorWithContext(logger, "stage failed", "stage_failed",
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
			logging.Duration("stage_duration", time.Since(start)),
		)
		return &StageError{Stage: name, Err: err}
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}
