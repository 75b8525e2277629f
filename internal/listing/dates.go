package listing

import (
	"regexp"
	"strconv"
	"time"
)

var (
	dayPattern        = regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`)
	kanjiMonthPattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月`)
	slashMonthPattern = regexp.MustCompile(`(\d{4})/(\d{1,2})`)
)

// IsUndetermined reports whether a broadcast-date cell lacks a day component.
func IsUndetermined(cell string) bool {
	return !dayPattern.MatchString(cell)
}

// ParseAirDate extracts a calendar date from a broadcast-date cell. Accepted
// shapes are 2025/10/13(月), 2025/10/13, 2025年10月 and 2025/10; month-only
// values resolve to the first of the month. Impossible dates yield nil.
func ParseAirDate(cell string) *time.Time {
	if m := dayPattern.FindStringSubmatch(cell); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := kanjiMonthPattern.FindStringSubmatch(cell); m != nil {
		return buildDate(m[1], m[2], "1")
	}
	if m := slashMonthPattern.FindStringSubmatch(cell); m != nil {
		return buildDate(m[1], m[2], "1")
	}
	return nil
}

func buildDate(yearText, monthText, dayText string) *time.Time {
	year, errY := strconv.Atoi(yearText)
	month, errM := strconv.Atoi(monthText)
	day, errD := strconv.Atoi(dayText)
	if errY != nil || errM != nil || errD != nil {
		return nil
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return nil
	}
	return &date
}
