package anime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for air dates on the wire.
const DateLayout = "2006-01-02"

// Work is one scraped listing entry after title cleaning.
type Work struct {
	OriginalTitle string     `json:"original_title"`
	CleanedTitle  string     `json:"cleaned_title"`
	AirDate       *time.Time `json:"-"`
	Keywords      []string   `json:"keywords"`
}

type workJSON struct {
	OriginalTitle string   `json:"original_title"`
	CleanedTitle  string   `json:"cleaned_title"`
	AirDate       *string  `json:"air_date"`
	Keywords      []string `json:"keywords"`
}

// MarshalJSON renders AirDate as a YYYY-MM-DD string or null.
func (w Work) MarshalJSON() ([]byte, error) {
	out := workJSON{
		OriginalTitle: w.OriginalTitle,
		CleanedTitle:  w.CleanedTitle,
		Keywords:      w.Keywords,
	}
	if out.Keywords == nil {
		out.Keywords = []string{}
	}
	if w.AirDate != nil {
		formatted := w.AirDate.Format(DateLayout)
		out.AirDate = &formatted
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts air_date as YYYY-MM-DD, empty string, or null.
func (w *Work) UnmarshalJSON(data []byte) error {
	var in workJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	w.OriginalTitle = in.OriginalTitle
	w.CleanedTitle = in.CleanedTitle
	w.Keywords = in.Keywords
	w.AirDate = nil
	if in.AirDate != nil && strings.TrimSpace(*in.AirDate) != "" {
		date, err := ParseDate(*in.AirDate)
		if err != nil {
			return fmt.Errorf("air_date: %w", err)
		}
		w.AirDate = &date
	}
	return nil
}

// DisplayTitle returns the cleaned title, falling back to the original.
func (w Work) DisplayTitle() string {
	if title := strings.TrimSpace(w.CleanedTitle); title != "" {
		return title
	}
	return strings.TrimSpace(w.OriginalTitle)
}

// AirDateString formats the air date or returns fallback when unknown.
func (w Work) AirDateString(fallback string) string {
	if w.AirDate == nil {
		return fallback
	}
	return w.AirDate.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
}

// Date builds a calendar date in UTC.
func Date(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

// Candidate is a catalog record retrieved as a possible identity for a Work.
type Candidate struct {
	CatalogID      int64    `json:"bangumi_id"`
	PrimaryTitle   string   `json:"japanese_title"`
	LocalizedTitle string   `json:"chinese_title"`
	Aliases        []string `json:"aliases"`
	AirDate        string   `json:"air_date,omitempty"`
	Score          *float64 `json:"score,omitempty"`
}

// MatchTask is one independent matching problem: a work and the candidates
// discovered for it.
type MatchTask struct {
	Work       Work
	Candidates []Candidate
}

// MatchResult is the matcher's verdict for one task of a batch. TaskIndex is
// relative to the batch, not to the full work list.
type MatchResult struct {
	TaskIndex  int
	CatalogID  int64
	Matched    bool
	Confidence float64
	Reasoning  string
}

// Resolution is the final per-work output. Matched=false is an explicit
// "no match" outcome, not an error.
type Resolution struct {
	Work           Work
	CatalogID      int64
	Matched        bool
	LocalizedTitle string
	Aliases        []string
}

type resolutionJSON struct {
	OriginalTitle  string   `json:"original_title"`
	CleanedTitle   string   `json:"cleaned_title"`
	BangumiID      *int64   `json:"bangumi_id"`
	LocalizedTitle *string  `json:"chinese_name"`
	Aliases        []string `json:"aliases"`
	AirDate        *string  `json:"air_date"`
	Keywords       []string `json:"keywords"`
}

// MarshalJSON writes the flat record consumed by rule generation.
func (r Resolution) MarshalJSON() ([]byte, error) {
	out := resolutionJSON{
		OriginalTitle: r.Work.OriginalTitle,
		CleanedTitle:  r.Work.CleanedTitle,
		Aliases:       r.Aliases,
		Keywords:      r.Work.Keywords,
	}
	if out.Aliases == nil {
		out.Aliases = []string{}
	}
	if out.Keywords == nil {
		out.Keywords = []string{}
	}
	if r.Matched {
		id := r.CatalogID
		out.BangumiID = &id
		if name := strings.TrimSpace(r.LocalizedTitle); name != "" {
			out.LocalizedTitle = &name
		}
	}
	if r.Work.AirDate != nil {
		formatted := r.Work.AirDate.Format(DateLayout)
		out.AirDate = &formatted
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads records written by MarshalJSON.
func (r *Resolution) UnmarshalJSON(data []byte) error {
	var in resolutionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Resolution{
		Work: Work{
			OriginalTitle: in.OriginalTitle,
			CleanedTitle:  in.CleanedTitle,
			Keywords:      in.Keywords,
		},
		Aliases: in.Aliases,
	}
	if in.AirDate != nil && strings.TrimSpace(*in.AirDate) != "" {
		date, err := ParseDate(*in.AirDate)
		if err != nil {
			return fmt.Errorf("air_date: %w", err)
		}
		r.Work.AirDate = &date
	}
	if in.BangumiID != nil {
		r.Matched = true
		r.CatalogID = *in.BangumiID
	}
	if in.LocalizedTitle != nil {
		r.LocalizedTitle = *in.LocalizedTitle
	}
	return nil
}
