package catalog

import "time"

// AirDateFilter builds the Bangumi air_date filter for a calendar date: the
// date is anchored at midnight in loc and widened by windowDays on both sides,
// yielding [">=start", "<end"].
func AirDateFilter(date time.Time, loc *time.Location, windowDays int) []string {
	if loc == nil {
		loc = time.UTC
	}
	anchor := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	start := anchor.AddDate(0, 0, -windowDays)
	end := anchor.AddDate(0, 0, windowDays)
	return []string{
		">=" + start.Format("2006-01-02"),
		"<" + end.Format("2006-01-02"),
	}
}
