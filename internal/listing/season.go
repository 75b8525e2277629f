package listing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	seasonMonthPattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月`)
	seasonNamePattern  = regexp.MustCompile(`(\d{4})年\s*(春|夏|秋|冬)`)
)

var seasonStartMonth = map[string]int{"冬": 1, "春": 4, "夏": 7, "秋": 10}

// SeasonName derives the season folder name, e.g. 2025年10月新番, from a
// table title. Titles naming a month or a season word are honoured; any
// other title falls back to the quarter containing now.
func SeasonName(tableTitle string, now time.Time) string {
	if m := seasonMonthPattern.FindStringSubmatch(tableTitle); m != nil {
		month, err := strconv.Atoi(m[2])
		if err == nil && month >= 1 && month <= 12 {
			return formatSeason(m[1], month)
		}
	}
	if m := seasonNamePattern.FindStringSubmatch(tableTitle); m != nil {
		return formatSeason(m[1], seasonStartMonth[m[2]])
	}
	quarterStart := ((int(now.Month())-1)/3)*3 + 1
	return formatSeason(strconv.Itoa(now.Year()), quarterStart)
}

func formatSeason(year string, month int) string {
	return fmt.Sprintf("%s年%02d月新番", year, month)
}
