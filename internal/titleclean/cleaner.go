package titleclean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"bgmrules/internal/anime"
	"bgmrules/internal/logging"
	"bgmrules/internal/resolve"
	"bgmrules/internal/services"
	"bgmrules/internal/services/llm"
)

// StageCleaning is the stage name reported while titles are cleaned.
const StageCleaning = "cleaning"

const (
	defaultBatchSize = 20
	titleColumns     = 40
)

// Completer sends a prompt to a language model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (llm.Completion, error)
}

// Options tune a Cleaner.
type Options struct {
	BatchSize     int
	BatchInterval time.Duration
	Observer      resolve.Observer
	Logger        *slog.Logger
}

// Stats summarises a Clean call.
type Stats struct {
	Works         int
	Batches       int
	FailedBatches int
	// Cleaned counts works whose title and keywords came from the model.
	Cleaned int
}

// Result is the output of a Clean call.
type Result struct {
	Works []anime.Work
	Stats Stats
}

// Cleaner drives table selection and title cleaning.
type Cleaner struct {
	completer Completer
	batchSize int
	interval  time.Duration
	observer  resolve.Observer
	logger    *slog.Logger
}

// New builds a Cleaner.
func New(completer Completer, opts Options) (*Cleaner, error) {
	if completer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "cleaning", "init", "completer required", nil)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cleaner{
		completer: completer,
		batchSize: opts.BatchSize,
		interval:  max(opts.BatchInterval, 0),
		observer:  opts.Observer,
		logger:    logger,
	}, nil
}

// SelectTable asks the model which of titles best matches description. An
// unreadable reply or an out-of-range index selects table 0; backend
// failures are returned.
func (c *Cleaner) SelectTable(ctx context.Context, description string, titles []string) (int, error) {
	if len(titles) == 0 {
		return 0, services.Wrap(services.ErrValidation, StageCleaning, "select table", "listing page has no tables", nil)
	}
	if len(titles) == 1 {
		return 0, nil
	}
	completion, err := c.completer.Complete(ctx, buildSelectionPrompt(description, titles))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("select table: %w", err)
	}
	var reply struct {
		TableIndex *int `json:"table_index"`
	}
	if err := llm.DecodeLLMJSON(completion.Content, &reply); err != nil || reply.TableIndex == nil {
		logging.WarnWithContext(c.logger, "table selection unreadable", "table_selection_fallback",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the model did not return {\"table_index\": n}"),
			logging.String(logging.FieldImpact, "using the first table on the page"),
		)
		return 0, nil
	}
	index := *reply.TableIndex
	if index < 0 || index >= len(titles) {
		logging.WarnWithContext(c.logger, "table selection out of range", "table_selection_fallback",
			logging.Int("table_index", index),
			logging.Int("tables", len(titles)),
			logging.String(logging.FieldImpact, "using the first table on the page"),
		)
		return 0, nil
	}
	c.logger.Info("table selected",
		logging.Int("table_index", index),
		logging.String("title", titles[index]))
	return index, nil
}

type cleanedWork struct {
	OriginalTitle string   `json:"original_title"`
	CleanedTitle  string   `json:"cleaned_title"`
	Keywords      []string `json:"keywords"`
}

// Clean returns one work per input work, in order. Air dates and original
// titles always come from the input; a batch the model fails on keeps its
// raw works.
func (c *Cleaner) Clean(ctx context.Context, works []anime.Work) (Result, error) {
	result := Result{Works: make([]anime.Work, 0, len(works)), Stats: Stats{Works: len(works)}}
	if len(works) == 0 {
		return result, nil
	}
	ctx = services.WithStage(ctx, StageCleaning)
	pacer := resolve.NewPacer(c.interval)
	total := (len(works) + c.batchSize - 1) / c.batchSize
	b := 0
	for batch := range slices.Chunk(works, c.batchSize) {
		if err := pacer.Wait(ctx); err != nil {
			return Result{}, err
		}
		logger := logging.WithContext(services.WithBatchIndex(ctx, b), c.logger)
		cleaned, err := c.cleanBatch(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			result.Stats.FailedBatches++
			logging.WarnWithContext(logger, "title cleaning batch failed", "cleaning_batch_failed",
				logging.Int("works", len(batch)),
				logging.String("error_kind", services.Kind(err)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "raw titles are used for this batch"),
			)
		}
		for i, work := range batch {
			if i < len(cleaned) {
				if merged, ok := merge(work, cleaned[i]); ok {
					result.Works = append(result.Works, merged)
					result.Stats.Cleaned++
					continue
				}
			}
			result.Works = append(result.Works, rawWork(work))
		}
		result.Stats.Batches++
		b++
		last := batch[len(batch)-1]
		c.notify(len(result.Works), len(works), fmt.Sprintf("batch %d/%d %s", b, total, Truncate(last.DisplayTitle(), titleColumns)))
	}
	c.logger.Info("title cleaning finished",
		logging.Int("works", result.Stats.Works),
		logging.Int("cleaned", result.Stats.Cleaned),
		logging.Int("failed_batches", result.Stats.FailedBatches))
	return result, nil
}

func (c *Cleaner) cleanBatch(ctx context.Context, batch []anime.Work) ([]cleanedWork, error) {
	completion, err := c.completer.Complete(ctx, buildCleaningPrompt(batch))
	if err != nil {
		return nil, err
	}
	var reply struct {
		Works []cleanedWork `json:"works"`
	}
	if err := llm.DecodeLLMJSON(completion.Content, &reply); err != nil {
		return nil, services.Wrap(services.ErrBackend, StageCleaning, "decode response", "", err)
	}
	if len(reply.Works) == 0 {
		return nil, services.Wrap(services.ErrBackend, StageCleaning, "decode response", "", errors.New("no works in reply"))
	}
	return reply.Works, nil
}

func merge(raw anime.Work, cleaned cleanedWork) (anime.Work, bool) {
	title := strings.TrimSpace(cleaned.CleanedTitle)
	if title == "" {
		return anime.Work{}, false
	}
	return anime.Work{
		OriginalTitle: raw.OriginalTitle,
		CleanedTitle:  title,
		AirDate:       raw.AirDate,
		Keywords:      normalizeKeywords(cleaned.Keywords),
	}, true
}

func rawWork(work anime.Work) anime.Work {
	return anime.Work{
		OriginalTitle: work.OriginalTitle,
		CleanedTitle:  work.OriginalTitle,
		AirDate:       work.AirDate,
		Keywords:      []string{},
	}
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.Join(strings.Fields(keyword), " ")
		if keyword == "" || slices.Contains(out, keyword) {
			continue
		}
		out = append(out, keyword)
	}
	return out
}

func (c *Cleaner) notify(completed, total int, message string) {
	if c.observer == nil {
		return
	}
	c.observer.OnProgress(StageCleaning, completed, total, message)
}
