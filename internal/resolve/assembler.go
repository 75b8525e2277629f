package resolve

import (
	"slices"

	"bgmrules/internal/anime"
)

// Assemble zips works with their match outcomes. taskIndexByWork[i] is the
// global task index of work i, or negative when the work had no task. A
// matched id that is absent from the work's own candidates resolves to
// unmatched.
func Assemble(works []anime.Work, taskIndexByWork []int, candidatesByWork [][]anime.Candidate, matches []anime.MatchResult) []anime.Resolution {
	resolutions := make([]anime.Resolution, len(works))
	for i, work := range works {
		resolutions[i] = anime.Resolution{Work: work, Aliases: []string{}}
		taskIndex := -1
		if i < len(taskIndexByWork) {
			taskIndex = taskIndexByWork[i]
		}
		if taskIndex < 0 || taskIndex >= len(matches) {
			continue
		}
		match := matches[taskIndex]
		if !match.Matched {
			continue
		}
		var candidates []anime.Candidate
		if i < len(candidatesByWork) {
			candidates = candidatesByWork[i]
		}
		pos := slices.IndexFunc(candidates, func(c anime.Candidate) bool {
			return c.CatalogID == match.CatalogID
		})
		if pos < 0 {
			continue
		}
		candidate := candidates[pos]
		resolutions[i].Matched = true
		resolutions[i].CatalogID = candidate.CatalogID
		resolutions[i].LocalizedTitle = candidate.LocalizedTitle
		if len(candidate.Aliases) > 0 {
			resolutions[i].Aliases = slices.Clone(candidate.Aliases)
		}
	}
	return resolutions
}
