package resolve

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"bgmrules/internal/anime"
)

const promptHeader = `You are matching anime titles from a seasonal broadcast listing to entries of the Bangumi catalog.

The request below contains %d independent tasks. Rules:
1. Every task is independent. Judge each task only against its own candidate list and never reuse a candidate from another task.
2. Return exactly one result for every task, in any order, identified by its source_index.
3. If no candidate in a task is clearly the same work, return null for matched_bangumi_id.
4. A candidate id must be copied from that task's own list.

`

const promptCriteria = `Matching signals, in order of weight:
- Title similarity across scripts. Japanese, Chinese, romanized and English titles of the same work count as equal.
- Season and sequel numbering. "3", "第3期", "Season 3", "III" and "第三季" denote the same season; a different season number means a different work.
- Air date proximity. The candidate's air date should be close to the source air date; a gap of several months or more is a strong negative signal.
- Overlap between the source keywords and the candidate's aliases.

Only return a matched_bangumi_id when you are confident; confidence must be a number between 0 and 1, and matches at or below %.2f are discarded.

Respond with JSON only, in exactly this shape:
{"matches":[{"source_index":0,"matched_bangumi_id":123456,"confidence":0.95,"reasoning":"short explanation"}]}
Use null for matched_bangumi_id when there is no match.
`

// BuildBatchPrompt renders one prompt covering every task of a batch. Task
// numbers are batch-relative and equal the expected source_index values.
func BuildBatchPrompt(tasks []anime.MatchTask, threshold float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, promptHeader, len(tasks))
	for i, task := range tasks {
		writeTask(&b, i, task)
	}
	fmt.Fprintf(&b, promptCriteria, threshold)
	return b.String()
}

func writeTask(b *strings.Builder, index int, task anime.MatchTask) {
	work := task.Work
	fmt.Fprintf(b, "=== Task %d ===\n", index)
	fmt.Fprintf(b, "Original title: %s\n", work.OriginalTitle)
	fmt.Fprintf(b, "Cleaned title: %s\n", work.CleanedTitle)
	fmt.Fprintf(b, "Air date: %s\n", work.AirDateString("unknown"))
	fmt.Fprintf(b, "Keywords: %s\n", jsonList(work.Keywords))
	if len(task.Candidates) == 0 {
		b.WriteString("Candidates: none (answer null)\n\n")
		return
	}
	b.WriteString("Candidates:\n")
	for n, candidate := range task.Candidates {
		fmt.Fprintf(b, "%d. [ID: %d] %s", n+1, candidate.CatalogID, candidate.PrimaryTitle)
		if localized := strings.TrimSpace(candidate.LocalizedTitle); localized != "" {
			fmt.Fprintf(b, " (Chinese: %s)", localized)
		}
		if date := strings.TrimSpace(candidate.AirDate); date != "" {
			fmt.Fprintf(b, " (air date: %s)", date)
		}
		if len(candidate.Aliases) > 0 {
			fmt.Fprintf(b, " (aliases: %s)", jsonList(candidate.Aliases))
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return "[]"
	}
	return strings.TrimSpace(buf.String())
}
