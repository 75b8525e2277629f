package catalog

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"bgmrules/internal/anime"
)

var (
	aliasKeys   = map[string]struct{}{"别名": {}, "中文名": {}, "译名": {}}
	airDateKeys = []string{"放送开始", "开始"}
	dateLayouts = []string{"2006-01-02", "2006年1月2日"}
)

// Subject is one record of the Bangumi search response.
type Subject struct {
	ID      int64         `json:"id"`
	Name    string        `json:"name"`
	NameCN  string        `json:"name_cn"`
	Date    string        `json:"date"`
	Infobox []InfoboxItem `json:"infobox"`
	Rating  *struct {
		Score float64 `json:"score"`
	} `json:"rating"`
}

// InfoboxItem is a free-form key/value pair. Value is a string, an array of
// strings, or an array of {"k": ..., "v": ...} objects.
type InfoboxItem struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Candidate converts the subject into a matching candidate.
func (s Subject) Candidate() anime.Candidate {
	candidate := anime.Candidate{
		CatalogID:      s.ID,
		PrimaryTitle:   s.Name,
		LocalizedTitle: s.NameCN,
		Aliases:        Aliases(s.Infobox),
	}
	if date, ok := s.AirDate(); ok {
		candidate.AirDate = date.Format(anime.DateLayout)
	}
	if s.Rating != nil && s.Rating.Score > 0 {
		score := s.Rating.Score
		candidate.Score = &score
	}
	return candidate
}

// AirDate reads the top-level date, falling back to the infobox broadcast
// start entries.
func (s Subject) AirDate() (time.Time, bool) {
	if date, ok := parseSubjectDate(s.Date); ok {
		return date, true
	}
	for _, item := range s.Infobox {
		if !slices.Contains(airDateKeys, item.Key) {
			continue
		}
		var value string
		if err := json.Unmarshal(item.Value, &value); err != nil {
			continue
		}
		if date, ok := parseSubjectDate(value); ok {
			return date, true
		}
	}
	return time.Time{}, false
}

func parseSubjectDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if date, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}

// Aliases collects alternative titles from the alias-bearing infobox keys in
// infobox order. Values of unexpected shape are ignored.
func Aliases(infobox []InfoboxItem) []string {
	var aliases []string
	for _, item := range infobox {
		if _, ok := aliasKeys[item.Key]; !ok {
			continue
		}
		aliases = append(aliases, infoboxStrings(item.Value)...)
	}
	return aliases
}

func infoboxStrings(raw json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return nonBlank(single)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	var out []string
	for _, element := range list {
		var text string
		if err := json.Unmarshal(element, &text); err == nil {
			out = append(out, nonBlank(text)...)
			continue
		}
		var pair struct {
			V *string `json:"v"`
		}
		if err := json.Unmarshal(element, &pair); err == nil && pair.V != nil {
			out = append(out, nonBlank(*pair.V)...)
		}
	}
	return out
}

func nonBlank(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return []string{value}
}
