package titleclean

import (
	"fmt"
	"strings"

	"bgmrules/internal/anime"
)

func buildSelectionPrompt(description string, titles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user is looking for: %q\n\n", description)
	b.WriteString("These are the titles of the tables found on the listing page:\n")
	for i, title := range titles {
		if strings.TrimSpace(title) == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "[%d] %s\n", i, title)
	}
	b.WriteString("\nPick the table whose title best matches the user's description. Indices start at 0.\n")
	b.WriteString(`Respond with JSON only: {"table_index": <number>}`)
	b.WriteByte('\n')
	return b.String()
}

const cleaningInstructions = `
For every work above:
1. Clean the title. Remove noise such as dub or edition markers (for example 【日本語吹替版】) but keep season numbers and subtitles. Text inside 『』, 【】, （）, 《》 and 「」 is usually a subtitle and must be kept, e.g. the 「芹沢暗殺編」 of 青のミブロ 第二期「芹沢暗殺編」.
2. Generate 5 to 8 search keywords covering:
   - the Japanese title, including variants where a middle dot (・) is replaced by a space
   - the common Chinese title
   - the English title
   - other common search variants
   Notes:
   - main title and subtitle are equally important; at least one keyword must contain both, separated by a half-width space
   - separator symbols such as ・, ♥ or ☆ should become half-width spaces in keywords
   - avoid decorative symbols in keywords since they disturb catalog search
   - for remakes of classic works include the well-known names of the original (e.g. キャッツ・アイ, キャッツ アイ, 猫眼三姐妹)

Return the works in the same order as given, one entry per work.
Respond with JSON only, in exactly this shape:
{"works":[{"original_title":"...","cleaned_title":"...","keywords":["...","..."]}]}
`

func buildCleaningPrompt(works []anime.Work) string {
	var b strings.Builder
	b.WriteString("Here is a list of anime works to process:\n\n")
	for i, work := range works {
		fmt.Fprintf(&b, "%d. Original title: %s, air date: %s\n", i+1, work.OriginalTitle, work.AirDateString("unknown"))
	}
	b.WriteString(cleaningInstructions)
	return b.String()
}
