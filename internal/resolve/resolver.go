package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bgmrules/internal/anime"
	"bgmrules/internal/catalog"
	"bgmrules/internal/logging"
	"bgmrules/internal/services"
)

// Pipeline stage names reported to observers and log context.
const (
	StageRetrieval = "retrieval"
	StageMatching  = "matching"
)

const (
	// DefaultBatchSize is the number of tasks classified per model request.
	DefaultBatchSize = 10
	// DefaultBatchInterval is the minimum spacing between model requests.
	DefaultBatchInterval = 500 * time.Millisecond
)

// Observer receives progress notifications. Implementations must not block.
type Observer interface {
	OnProgress(stage string, completed, total int, message string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(stage string, completed, total int, message string)

// OnProgress calls f.
func (f ObserverFunc) OnProgress(stage string, completed, total int, message string) {
	f(stage, completed, total, message)
}

// Options tune a Resolver.
type Options struct {
	BatchSize int
	// Threshold is the strict confidence bound. Zero selects
	// DefaultConfidenceThreshold; values outside [0,1) are rejected.
	Threshold     float64
	BatchInterval time.Duration
	// AbortOnRetrievalError stops the run at the first failed work instead
	// of leaving that work unmatched.
	AbortOnRetrievalError bool
	Observer              Observer
	Logger                *slog.Logger
}

// Stats summarises one Resolve call.
type Stats struct {
	Works               int
	WorksWithCandidates int
	RetrievalFailures   int
	Batches             int
	DegradedBatches     int
	RateLimitedBatches  int
	Matched             int
	Requests            int
	PromptTokens        int
	CompletionTokens    int
	Duration            time.Duration
}

// Unmatched returns the number of works left without a catalog identity.
func (s Stats) Unmatched() int {
	return s.Works - s.Matched
}

// Outcome is the result of a Resolve call.
type Outcome struct {
	Resolutions []anime.Resolution
	Stats       Stats
}

// Resolver runs retrieval and matching for a list of works.
type Resolver struct {
	aggregator *Aggregator
	matcher    *Matcher
	batchSize  int
	interval   time.Duration
	abort      bool
	observer   Observer
	logger     *slog.Logger
}

// NewResolver wires a Resolver over a catalog searcher and a model completer.
func NewResolver(searcher catalog.Searcher, completer Completer, opts Options) (*Resolver, error) {
	if searcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "resolve", "init", "catalog searcher required", nil)
	}
	if completer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "resolve", "init", "completer required", nil)
	}
	if opts.BatchSize < 0 {
		return nil, services.Wrap(services.ErrConfiguration, "resolve", "init", fmt.Sprintf("batch size must be positive, got %d", opts.BatchSize), nil)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultConfidenceThreshold
	}
	if opts.BatchInterval < 0 {
		opts.BatchInterval = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	matcher, err := NewMatcher(completer, opts.Threshold, logging.NewComponentLogger(logger, "matcher"))
	if err != nil {
		return nil, err
	}
	return &Resolver{
		aggregator: NewAggregator(searcher, logging.NewComponentLogger(logger, "aggregator")),
		matcher:    matcher,
		batchSize:  opts.BatchSize,
		interval:   opts.BatchInterval,
		abort:      opts.AbortOnRetrievalError,
		observer:   opts.Observer,
		logger:     logging.NewComponentLogger(logger, "resolver"),
	}, nil
}

// Resolve returns exactly one Resolution per work, in input order. It fails
// only when ctx is cancelled or, with AbortOnRetrievalError, when a work's
// candidate retrieval fails.
func (r *Resolver) Resolve(ctx context.Context, works []anime.Work) (Outcome, error) {
	start := time.Now()
	stats := Stats{Works: len(works)}
	before := r.matcher.Stats()

	candidatesByWork := make([][]anime.Candidate, len(works))
	taskIndexByWork := make([]int, len(works))
	tasks := make([]anime.MatchTask, 0, len(works))

	retrievalCtx := services.WithStage(ctx, StageRetrieval)
	logger := logging.WithContext(retrievalCtx, r.logger)
	logger.Info("candidate retrieval started", logging.Int("works", len(works)))
	for i, work := range works {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		taskIndexByWork[i] = -1
		workCtx := services.WithWorkIndex(retrievalCtx, i)
		candidates, err := r.aggregator.BuildCandidates(workCtx, work)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}
			if r.abort {
				return Outcome{}, fmt.Errorf("resolve work %d %q: %w", i, work.DisplayTitle(), err)
			}
			stats.RetrievalFailures++
			logging.WarnWithContext(logging.WithContext(workCtx, r.logger), "candidate retrieval failed", "retrieval_failed",
				logging.String("title", work.DisplayTitle()),
				logging.String("error_kind", services.Kind(err)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check network access to the catalog API"),
				logging.String(logging.FieldImpact, "work is left unmatched"),
			)
			r.notify(StageRetrieval, i+1, len(works), work.DisplayTitle())
			continue
		}
		candidatesByWork[i] = candidates
		if len(candidates) > 0 {
			taskIndexByWork[i] = len(tasks)
			tasks = append(tasks, anime.MatchTask{Work: work, Candidates: candidates})
			stats.WorksWithCandidates++
		}
		r.notify(StageRetrieval, i+1, len(works), work.DisplayTitle())
	}

	matches, err := r.matchAll(ctx, tasks, &stats)
	if err != nil {
		return Outcome{}, err
	}

	resolutions := Assemble(works, taskIndexByWork, candidatesByWork, matches)
	for _, resolution := range resolutions {
		if resolution.Matched {
			stats.Matched++
		}
	}
	delta := r.matcher.Stats().Sub(before)
	stats.DegradedBatches = delta.Degraded
	stats.RateLimitedBatches = delta.RateLimited
	stats.Requests = delta.Usage.Requests
	stats.PromptTokens = delta.Usage.PromptTokens
	stats.CompletionTokens = delta.Usage.CompletionTokens
	stats.Duration = time.Since(start)

	r.logger.Info("resolution finished",
		logging.Int("works", stats.Works),
		logging.Int("works_with_candidates", stats.WorksWithCandidates),
		logging.Int("retrieval_failures", stats.RetrievalFailures),
		logging.Int("batches", stats.Batches),
		logging.Int("degraded_batches", stats.DegradedBatches),
		logging.Int("matched", stats.Matched),
		logging.Int("unmatched", stats.Unmatched()),
		logging.Duration("duration", stats.Duration))
	return Outcome{Resolutions: resolutions, Stats: stats}, nil
}

func (r *Resolver) matchAll(ctx context.Context, tasks []anime.MatchTask, stats *Stats) ([]anime.MatchResult, error) {
	matches := make([]anime.MatchResult, len(tasks))
	if len(tasks) == 0 {
		r.logger.Info("no works have candidates; skipping AI matching")
		return matches, nil
	}
	batches, err := Batch(tasks, r.batchSize)
	if err != nil {
		return nil, err
	}
	stats.Batches = len(batches)
	matchCtx := services.WithStage(ctx, StageMatching)
	logging.WithContext(matchCtx, r.logger).Info("AI matching started",
		logging.Int("tasks", len(tasks)),
		logging.Int("batches", len(batches)),
		logging.Int("batch_size", r.batchSize))

	pacer := NewPacer(r.interval)
	offset := 0
	for b, batch := range batches {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		batchCtx := services.WithBatchIndex(matchCtx, b)
		results := r.matcher.MatchBatch(batchCtx, batch)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := range batch {
			matches[offset+j] = results[j]
		}
		offset += len(batch)
		r.notify(StageMatching, offset, len(tasks), fmt.Sprintf("batch %d/%d", b+1, len(batches)))
	}
	return matches, nil
}

func (r *Resolver) notify(stage string, completed, total int, message string) {
	if r.observer == nil {
		return
	}
	r.observer.OnProgress(stage, completed, total, message)
}
