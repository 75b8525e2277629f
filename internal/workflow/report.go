package workflow

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"bgmrules/internal/anime"
	"bgmrules/internal/rules"
	"bgmrules/internal/titleclean"
)

const reportTitleColumns = 48

// Report summarises a pipeline run.
type Report struct {
	RunID      string
	TableTitle string
	Season     string

	TableWorks   int
	Undetermined int
	AIProcessed  int

	CleaningFailedBatches int
	Resolution            ResolutionStats

	RulesGenerated  int
	RulesFailed     []rules.Failure
	DuplicateMerges int

	AIRequests       int
	PromptTokens     int
	CompletionTokens int

	Unmatched []anime.Work

	ResultsPath string
	RulesPath   string
	Duration    time.Duration
}

// ResolutionStats mirrors the resolver's per-run counters.
type ResolutionStats struct {
	Works               int
	WorksWithCandidates int
	RetrievalFailures   int
	Batches             int
	DegradedBatches     int
	RateLimitedBatches  int
	Matched             int
}

// TotalTokens is the sum of prompt and completion tokens.
func (r *Report) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Render writes the report as tables.
func (r *Report) Render(w io.Writer) error {
	summary := table.NewWriter()
	summary.SetStyle(table.StyleRounded)
	summary.SetTitle(fmt.Sprintf("Run %s  %s", shortID(r.RunID), r.Season))
	summary.AppendHeader(table.Row{"Section", "Metric", "Value"})
	rows := []struct {
		section, metric string
		value           int
	}{
		{"Listing", "works parsed from table", r.TableWorks},
		{"Listing", "works with undetermined date", r.Undetermined},
		{"Listing", "works cleaned by AI", r.AIProcessed},
		{"Listing", "failed cleaning batches", r.CleaningFailedBatches},
		{"Catalog", "works with catalog match", r.Resolution.Matched},
		{"Catalog", "works without catalog match", r.Resolution.Works - r.Resolution.Matched},
		{"Catalog", "works with candidates", r.Resolution.WorksWithCandidates},
		{"Catalog", "retrieval failures", r.Resolution.RetrievalFailures},
		{"Catalog", "match batches", r.Resolution.Batches},
		{"Catalog", "degraded batches", r.Resolution.DegradedBatches},
		{"Catalog", "rate-limited batches", r.Resolution.RateLimitedBatches},
		{"Rules", "rules generated", r.RulesGenerated},
		{"Rules", "rules failed", len(r.RulesFailed)},
		{"Rules", "duplicate names merged", r.DuplicateMerges},
		{"AI", "requests", r.AIRequests},
		{"AI", "prompt tokens", r.PromptTokens},
		{"AI", "completion tokens", r.CompletionTokens},
		{"AI", "total tokens", r.TotalTokens()},
	}
	for _, row := range rows {
		summary.AppendRow(table.Row{row.section, row.metric, strconv.Itoa(row.value)})
	}
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 3, Align: text.AlignRight},
	})
	if _, err := fmt.Fprintln(w, summary.Render()); err != nil {
		return err
	}

	if len(r.RulesFailed) > 0 {
		failed := table.NewWriter()
		failed.SetStyle(table.StyleRounded)
		failed.SetTitle("Rule generation failures")
		failed.AppendHeader(table.Row{"Work", "Reason"})
		for _, f := range r.RulesFailed {
			failed.AppendRow(table.Row{titleclean.Truncate(f.Name, reportTitleColumns), f.Reason})
		}
		if _, err := fmt.Fprintln(w, failed.Render()); err != nil {
			return err
		}
	}

	unmatched := table.NewWriter()
	unmatched.SetStyle(table.StyleRounded)
	unmatched.SetTitle("Works without catalog match")
	unmatched.AppendHeader(table.Row{"Cleaned title", "Original title"})
	for _, work := range r.Unmatched {
		unmatched.AppendRow(table.Row{
			titleclean.Truncate(work.DisplayTitle(), reportTitleColumns),
			titleclean.Truncate(work.OriginalTitle, reportTitleColumns),
		})
	}
	if len(r.Unmatched) == 0 {
		unmatched.AppendRow(table.Row{"(none)", ""})
	}
	if _, err := fmt.Fprintln(w, unmatched.Render()); err != nil {
		return err
	}

	if r.ResultsPath != "" || r.RulesPath != "" {
		if _, err := fmt.Fprintf(w, "results: %s\nrules:   %s\nduration: %s\n", r.ResultsPath, r.RulesPath, r.Duration.Round(time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
