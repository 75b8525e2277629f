package listing

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bgmrules/internal/anime"
)

const (
	defaultTitleColumn = 0
	defaultDateColumn  = 1
)

var (
	titleHeaders = []string{"作品名", "タイトル"}
	dateHeaders  = []string{"放送開始日"}
)

// Table is one <table> of the listing page together with the text that
// introduces it.
type Table struct {
	Index int
	Title string
	sel   *goquery.Selection
}

// ParseResult holds the works read from a table.
type ParseResult struct {
	Works []anime.Work
	// Undetermined counts rows skipped because their broadcast date has no day.
	Undetermined int
}

// Total is the number of titled rows seen, kept or not.
func (r ParseResult) Total() int {
	return len(r.Works) + r.Undetermined
}

// ExtractTables parses an HTML document and returns its tables in document
// order with their titles.
func ExtractTables(r io.Reader) ([]Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	var tables []Table
	doc.Find("table").Each(func(i int, s *goquery.Selection) {
		tables = append(tables, Table{Index: i, Title: tableTitle(s), sel: s})
	})
	return tables, nil
}

// Parse reads the works of the table. The first row is the header; the
// title and broadcast-date columns are located by header text and default
// to the first and second column.
func (t Table) Parse() ParseResult {
	result := ParseResult{Works: []anime.Work{}}
	if t.sel == nil {
		return result
	}
	rows := t.sel.Find("tr")
	if rows.Length() < 2 {
		return result
	}
	titleCol, dateCol := headerColumns(rows.First())
	rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= titleCol || cells.Length() <= dateCol {
			return
		}
		title := normSpace(cells.Eq(titleCol).Text())
		if title == "" {
			return
		}
		dateCell := normSpace(cells.Eq(dateCol).Text())
		if IsUndetermined(dateCell) {
			result.Undetermined++
			return
		}
		result.Works = append(result.Works, anime.Work{
			OriginalTitle: title,
			CleanedTitle:  title,
			AirDate:       ParseAirDate(dateCell),
			Keywords:      []string{},
		})
	})
	return result
}

func headerColumns(header *goquery.Selection) (int, int) {
	titleCol, dateCol := -1, -1
	header.Find("th").Each(func(i int, cell *goquery.Selection) {
		text := normSpace(cell.Text())
		switch {
		case containsAny(text, titleHeaders):
			titleCol = i
		case containsAny(text, dateHeaders):
			dateCol = i
		}
	})
	if titleCol < 0 {
		titleCol = defaultTitleColumn
	}
	if dateCol < 0 {
		dateCol = defaultDateColumn
	}
	return titleCol, dateCol
}

// tableTitle returns the caption of s, or the text of the nearest preceding
// element at the same or an enclosing level. A preceding table ends the search.
func tableTitle(s *goquery.Selection) string {
	if caption := normSpace(s.ChildrenFiltered("caption").First().Text()); caption != "" {
		return caption
	}
	for cur := s; cur.Length() > 0 && !cur.Is("body, html"); cur = cur.Parent() {
		for prev := cur.Prev(); prev.Length() > 0; prev = prev.Prev() {
			if prev.Is("table") {
				return ""
			}
			if heading := prev.Find("h1, h2, h3, h4, h5, h6").Last(); heading.Length() > 0 {
				if text := normSpace(heading.Text()); text != "" {
					return text
				}
			}
			if prev.Find("table").Length() > 0 {
				return ""
			}
			if text := normSpace(prev.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
