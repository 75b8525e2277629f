package titleclean

import (
	"strings"

	"golang.org/x/text/width"
)

// DisplayWidth returns the number of terminal columns s occupies. East Asian
// wide and fullwidth runes count as two columns.
func DisplayWidth(s string) int {
	total := 0
	for _, r := range s {
		total += runeWidth(r)
	}
	return total
}

// Truncate shortens s to at most cols terminal columns, marking the cut with
// an ellipsis.
func Truncate(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	if DisplayWidth(s) <= cols {
		return s
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := runeWidth(r)
		if used+w > cols-1 {
			break
		}
		b.WriteRune(r)
		used += w
	}
	b.WriteString("…")
	return b.String()
}

func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}
