package resolve

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"bgmrules/internal/anime"
	"bgmrules/internal/catalog"
	"bgmrules/internal/logging"
	"bgmrules/internal/services"
)

// Aggregator collects catalog candidates for a work across all its search terms.
type Aggregator struct {
	searcher catalog.Searcher
	logger   *slog.Logger
}

// NewAggregator builds an Aggregator over searcher.
func NewAggregator(searcher catalog.Searcher, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Aggregator{searcher: searcher, logger: logger}
}

// SearchTerms returns the distinct trimmed, non-blank terms of a work in
// byte order.
func SearchTerms(work anime.Work) []string {
	terms := make([]string, 0, len(work.Keywords)+1)
	seen := make(map[string]struct{}, len(work.Keywords)+1)
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	add(work.CleanedTitle)
	for _, keyword := range work.Keywords {
		add(keyword)
	}
	slices.Sort(terms)
	return terms
}

// BuildCandidates queries every search term of work and returns the union of
// the results. The first occurrence of a catalog id wins. A failing term
// aborts the work with the retrieval error.
func (a *Aggregator) BuildCandidates(ctx context.Context, work anime.Work) ([]anime.Candidate, error) {
	logger := logging.WithContext(ctx, a.logger)
	terms := SearchTerms(work)
	candidates := make([]anime.Candidate, 0)
	seen := make(map[int64]struct{})
	for _, term := range terms {
		results, err := a.searcher.Query(ctx, term, work.AirDate)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, services.ErrRetrieval) {
				err = services.Wrap(services.ErrRetrieval, "retrieval", "query", term, err)
			}
			return nil, err
		}
		added := 0
		for _, candidate := range results {
			if _, ok := seen[candidate.CatalogID]; ok {
				continue
			}
			seen[candidate.CatalogID] = struct{}{}
			candidates = append(candidates, candidate)
			added++
		}
		logger.Debug("catalog term searched",
			logging.String("term", term),
			logging.Int("results", len(results)),
			logging.Int("new_candidates", added))
	}
	logger.Info("candidates collected",
		logging.String("title", work.DisplayTitle()),
		logging.Int("terms", len(terms)),
		logging.Int("candidates", len(candidates)))
	return candidates, nil
}
