package resolve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"bgmrules/internal/anime"
	"bgmrules/internal/logging"
	"bgmrules/internal/services"
	"bgmrules/internal/services/llm"
)

// DefaultConfidenceThreshold is the strict lower bound a match confidence must exceed.
const DefaultConfidenceThreshold = 0.7

// Completer sends a prompt to a language model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (llm.Completion, error)
}

var _ Completer = (*llm.Client)(nil)

// MatchStats counts matcher activity.
type MatchStats struct {
	Batches     int
	Degraded    int
	RateLimited int
	Usage       llm.Usage
}

// Sub returns the activity recorded since earlier.
func (s MatchStats) Sub(earlier MatchStats) MatchStats {
	return MatchStats{
		Batches:     s.Batches - earlier.Batches,
		Degraded:    s.Degraded - earlier.Degraded,
		RateLimited: s.RateLimited - earlier.RateLimited,
		Usage: llm.Usage{
			Requests:         s.Usage.Requests - earlier.Usage.Requests,
			PromptTokens:     s.Usage.PromptTokens - earlier.Usage.PromptTokens,
			CompletionTokens: s.Usage.CompletionTokens - earlier.Usage.CompletionTokens,
		},
	}
}

// Matcher classifies batches of match tasks with a language model.
type Matcher struct {
	completer Completer
	threshold float64
	logger    *slog.Logger

	mu    sync.Mutex
	stats MatchStats
}

// NewMatcher builds a Matcher. The threshold must lie in [0,1); a strict
// bound of 1 or more could never accept a clamped confidence.
func NewMatcher(completer Completer, threshold float64, logger *slog.Logger) (*Matcher, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Matcher{completer: completer, threshold: threshold, logger: logger}, nil
}

func checkThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold >= 1 {
		return services.Wrap(services.ErrConfiguration, "resolve", "init",
			fmt.Sprintf("confidence threshold must be in [0,1), got %v", threshold), nil)
	}
	return nil
}

// Threshold reports the confidence bound in use.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Stats returns cumulative matcher activity.
func (m *Matcher) Stats() MatchStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// MatchBatch returns exactly len(tasks) results in task order. Backend and
// decode failures degrade the whole batch to unmatched and are logged; they
// are never returned.
func (m *Matcher) MatchBatch(ctx context.Context, tasks []anime.MatchTask) []anime.MatchResult {
	results := unmatchedResults(len(tasks))
	if len(tasks) == 0 {
		return results
	}
	logger := logging.WithContext(ctx, m.logger)
	m.record(func(s *MatchStats) { s.Batches++ })

	prompt := BuildBatchPrompt(tasks, m.threshold)
	completion, err := m.completer.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return results
		}
		rateLimited := errors.Is(err, services.ErrRateLimited)
		m.record(func(s *MatchStats) {
			s.Degraded++
			if rateLimited {
				s.RateLimited++
			}
		})
		logging.WarnWithContext(logger, "match batch degraded", "match_batch_degraded",
			logging.Int("tasks", len(tasks)),
			logging.String("error_kind", services.Kind(err)),
			logging.Bool("rate_limited", rateLimited),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the AI provider status, API key and rate limits"),
			logging.String(logging.FieldImpact, "all works in this batch are left unmatched"),
		)
		return results
	}
	m.record(func(s *MatchStats) {
		s.Usage = s.Usage.Add(completion.Usage)
	})

	parsed, err := ParseMatchResponse(completion.Content, len(tasks), m.threshold)
	if err != nil {
		m.record(func(s *MatchStats) { s.Degraded++ })
		logging.WarnWithContext(logger, "match response unreadable", "match_batch_degraded",
			logging.Int("tasks", len(tasks)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the model did not return the expected JSON shape"),
			logging.String(logging.FieldImpact, "all works in this batch are left unmatched"),
		)
		return results
	}

	matched := 0
	for i, result := range parsed {
		if result.Matched && len(tasks[i].Candidates) == 0 {
			result.Matched = false
			result.CatalogID = 0
		}
		if result.Matched {
			matched++
		}
		results[i] = result
		m.logDecision(logger, tasks[i], result)
	}
	logger.Info("match batch classified",
		logging.Int("tasks", len(tasks)),
		logging.Int("matched", matched),
		logging.Int("prompt_tokens", completion.Usage.PromptTokens),
		logging.Int("completion_tokens", completion.Usage.CompletionTokens))
	return results
}

func (m *Matcher) logDecision(logger *slog.Logger, task anime.MatchTask, result anime.MatchResult) {
	decision, reason := "rejected", "no candidate above threshold"
	if result.Matched {
		decision, reason = "accepted", "confidence above threshold"
	}
	attrs := logging.DecisionAttrs("catalog_match", decision, reason)
	attrs = append(attrs,
		logging.String("title", task.Work.DisplayTitle()),
		logging.Int64("bangumi_id", result.CatalogID),
		logging.Float64("confidence", result.Confidence),
		logging.Float64("threshold", m.threshold),
		logging.String("reasoning", result.Reasoning),
	)
	logger.Debug("match decision", logging.Args(attrs...)...)
}

func (m *Matcher) record(update func(*MatchStats)) {
	m.mu.Lock()
	update(&m.stats)
	m.mu.Unlock()
}

func unmatchedResults(n int) []anime.MatchResult {
	results := make([]anime.MatchResult, n)
	for i := range results {
		results[i].TaskIndex = i
	}
	return results
}

type matchResponse struct {
	Matches *[]matchEntry `json:"matches"`
}

type matchEntry struct {
	SourceIndex *int      `json:"source_index"`
	MatchedID   catalogID `json:"matched_bangumi_id"`
	Confidence  float64   `json:"confidence"`
	Reasoning   string    `json:"reasoning"`
}

// catalogID accepts a JSON number, a numeric string, or null.
type catalogID struct {
	value int64
	valid bool
}

func (c *catalogID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = catalogID{}
		return nil
	}
	text := string(data)
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
		if text == "" || strings.EqualFold(text, "null") {
			*c = catalogID{}
			return nil
		}
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return fmt.Errorf("matched_bangumi_id %s: not an integer", string(data))
	}
	*c = catalogID{value: id, valid: id > 0}
	return nil
}

// ParseMatchResponse decodes a model reply into n batch-relative results.
// Entries are keyed by source_index; indices outside [0,n) are ignored and
// tasks without an entry stay unmatched. An entry is accepted only with a
// non-null id and a confidence strictly above threshold. When an index is
// answered more than once the first accepted entry wins.
func ParseMatchResponse(content string, n int, threshold float64) ([]anime.MatchResult, error) {
	var response matchResponse
	if err := llm.DecodeLLMJSON(llm.StripCodeFence(content), &response); err != nil {
		return nil, services.Wrap(services.ErrBackend, "matching", "decode response", "", err)
	}
	if response.Matches == nil {
		return nil, services.Wrap(services.ErrBackend, "matching", "decode response", "matches array missing", nil)
	}
	results := unmatchedResults(n)
	answered := make([]bool, n)
	for _, entry := range *response.Matches {
		if entry.SourceIndex == nil {
			continue
		}
		idx := *entry.SourceIndex
		if idx < 0 || idx >= n {
			continue
		}
		if results[idx].Matched {
			continue
		}
		confidence := clamp01(entry.Confidence)
		accepted := entry.MatchedID.valid && confidence > threshold
		if !accepted && answered[idx] {
			continue
		}
		answered[idx] = true
		results[idx] = anime.MatchResult{
			TaskIndex:  idx,
			Confidence: confidence,
			Reasoning:  strings.TrimSpace(entry.Reasoning),
		}
		if accepted {
			results[idx].CatalogID = entry.MatchedID.value
			results[idx].Matched = true
		}
	}
	return results, nil
}

func clamp01(value float64) float64 {
	return max(0, min(1, value))
}
