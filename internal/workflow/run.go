package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"bgmrules/internal/anime"
	"bgmrules/internal/config"
	"bgmrules/internal/listing"
	"bgmrules/internal/logging"
	"bgmrules/internal/resolve"
	"bgmrules/internal/rules"
	"bgmrules/internal/services"
)

// Run executes the full pipeline for task and returns its report.
func (m *Manager) Run(ctx context.Context, task *config.Task) (*Report, error) {
	if task == nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "run", "task required", nil)
	}
	if err := task.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "run", "", err)
	}
	if m.listing == nil || m.cleaner == nil || m.resolver == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "run", "listing, cleaner and resolver are required", nil)
	}

	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("run started",
		logging.String("description", task.Description),
		logging.String("site", task.Site))

	var tables []listing.Table
	if err := m.runStage(ctx, StageListing, func(ctx context.Context) error {
		var err error
		tables, err = m.listing.FetchTables(ctx)
		if err == nil && len(tables) == 0 {
			err = services.Wrap(services.ErrRetrieval, "listing", "extract tables", "page contains no tables", nil)
		}
		return err
	}); err != nil {
		return nil, err
	}

	var selected listing.Table
	if err := m.runStage(ctx, StageSelection, func(ctx context.Context) error {
		titles := make([]string, len(tables))
		for i, t := range tables {
			titles[i] = t.Title
		}
		index, err := m.cleaner.SelectTable(ctx, task.Description, titles)
		if err != nil {
			return err
		}
		selected = tables[index]
		return nil
	}); err != nil {
		return nil, err
	}
	report.TableTitle = selected.Title
	report.Season = listing.SeasonName(selected.Title, m.now())

	parsed := selected.Parse()
	report.TableWorks = parsed.Total()
	report.Undetermined = parsed.Undetermined
	logger.Info("table parsed",
		logging.String("table_title", selected.Title),
		logging.String("season", report.Season),
		logging.Int("works", len(parsed.Works)),
		logging.Int("undetermined", parsed.Undetermined))

	var works []anime.Work
	if err := m.runStage(ctx, StageCleaning, func(ctx context.Context) error {
		result, err := m.cleaner.Clean(ctx, parsed.Works)
		if err != nil {
			return err
		}
		works = result.Works
		report.AIProcessed = result.Stats.Cleaned
		report.CleaningFailedBatches = result.Stats.FailedBatches
		return nil
	}); err != nil {
		return nil, err
	}

	resolutions, err := m.resolveStage(ctx, works, report)
	if err != nil {
		return nil, err
	}

	report.ResultsPath = m.cfg.ResultsPath()
	if err := m.runStage(ctx, StageResults, func(context.Context) error {
		return SaveResults(report.ResultsPath, resolutions)
	}); err != nil {
		return nil, err
	}

	root := task.RootPathOr(m.cfg.Rules.RootPath)
	if _, err := m.writeRules(ctx, resolutions, report.Season, root, report); err != nil {
		return nil, err
	}

	m.finishReport(report, resolutions, start)
	logger.Info("run finished",
		logging.Int("rules", report.RulesGenerated),
		logging.Int("matched", report.Resolution.Matched),
		logging.Int("unmatched", len(report.Unmatched)),
		logging.Duration("duration", report.Duration))
	return report, nil
}

// Resolve runs only the resolution stage over works and caches the result
// at outputPath, or the configured results path when outputPath is empty.
func (m *Manager) Resolve(ctx context.Context, works []anime.Work, outputPath string) (*Report, []anime.Resolution, error) {
	if m.resolver == nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, "workflow", "resolve", "resolver required", nil)
	}
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), TableWorks: len(works)}
	ctx = services.WithRunID(ctx, report.RunID)

	resolutions, err := m.resolveStage(ctx, works, report)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(outputPath) == "" {
		outputPath = m.cfg.ResultsPath()
	}
	report.ResultsPath = outputPath
	if err := m.runStage(ctx, StageResults, func(context.Context) error {
		return SaveResults(outputPath, resolutions)
	}); err != nil {
		return nil, nil, err
	}
	m.finishReport(report, resolutions, start)
	return report, resolutions, nil
}

// GenerateRules writes rules for previously cached resolutions.
func (m *Manager) GenerateRules(ctx context.Context, resolutions []anime.Resolution, season, rootPath string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Season: season}
	ctx = services.WithRunID(ctx, report.RunID)
	if strings.TrimSpace(rootPath) == "" {
		rootPath = m.cfg.Rules.RootPath
	}
	if _, err := m.writeRules(ctx, resolutions, season, rootPath, report); err != nil {
		return nil, err
	}
	report.TableWorks = len(resolutions)
	for _, res := range resolutions {
		report.Resolution.Works++
		if res.Matched {
			report.Resolution.Matched++
		}
	}
	m.finishReport(report, resolutions, start)
	return report, nil
}

func (m *Manager) resolveStage(ctx context.Context, works []anime.Work, report *Report) ([]anime.Resolution, error) {
	var outcome resolve.Outcome
	if err := m.runStage(ctx, StageResolution, func(ctx context.Context) error {
		var err error
		outcome, err = m.resolver.Resolve(ctx, works)
		return err
	}); err != nil {
		return nil, err
	}
	stats := outcome.Stats
	report.Resolution = ResolutionStats{
		Works:               stats.Works,
		WorksWithCandidates: stats.WorksWithCandidates,
		RetrievalFailures:   stats.RetrievalFailures,
		Batches:             stats.Batches,
		DegradedBatches:     stats.DegradedBatches,
		RateLimitedBatches:  stats.RateLimitedBatches,
		Matched:             stats.Matched,
	}
	return outcome.Resolutions, nil
}

func (m *Manager) writeRules(ctx context.Context, resolutions []anime.Resolution, season, rootPath string, report *Report) (rules.Result, error) {
	if strings.TrimSpace(season) == "" {
		return rules.Result{}, services.Wrap(services.ErrValidation, "workflow", "rules", "season name required", nil)
	}
	var result rules.Result
	report.RulesPath = m.cfg.RulesPath()
	err := m.runStage(ctx, StageRules, func(ctx context.Context) error {
		result = rules.Generate(resolutions, rules.Options{
			RootPath:       rootPath,
			Season:         season,
			Feeds:          m.cfg.Rules.Feeds,
			MustNotContain: m.cfg.Rules.MustNotContain,
		})
		for _, failure := range result.Failed {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "rule generation failed", "rule_failed",
				logging.String("work", failure.Name),
				logging.String("reason", failure.Reason),
				logging.String(logging.FieldImpact, "no download rule for this work"),
			)
		}
		if err := rules.WriteFile(report.RulesPath, result.Rules); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(report.RulesPath), err)
		}
		return nil
	})
	if err != nil {
		return rules.Result{}, err
	}
	report.RulesGenerated = len(result.Rules)
	report.RulesFailed = result.Failed
	report.DuplicateMerges = result.Merged
	return result, nil
}

func (m *Manager) finishReport(report *Report, resolutions []anime.Resolution, start time.Time) {
	report.Unmatched = report.Unmatched[:0]
	for _, res := range resolutions {
		if !res.Matched {
			report.Unmatched = append(report.Unmatched, res.Work)
		}
	}
	usage := m.aiUsage()
	report.AIRequests = usage.Requests
	report.PromptTokens = usage.PromptTokens
	report.CompletionTokens = usage.CompletionTokens
	report.Duration = time.Since(start)
}

// IsStage reports whether err came from the named stage.
func IsStage(err error, stage string) bool {
	var stageErr *StageError
	return errors.As(err, &stageErr) && stageErr.Stage == stage
}
