package rules

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/width"

	"bgmrules/internal/anime"
)

const (
	// DefaultMustNotContain excludes batch, preview and v0 releases.
	DefaultMustNotContain = `.+01\-.+|.+合集.+|.+先行.+|.+\[V0.+|.+全集.+`

	qualityTags  = `(1080|2160|WebRip)`
	subtitleTags = `(CHS|CHT|GB|BIG5|简|繁|B-Global|Baha|bilibili|CR|Sentai|x264\sAAC|无字幕)`

	unknownWorkName  = "Unknown_Work"
	illegalNameRunes = `/\:*?"<>|`
)

// Options control rule generation.
type Options struct {
	RootPath       string
	Season         string
	Feeds          []string
	MustNotContain string
}

// Failure records a work no rule could be built for.
type Failure struct {
	Name   string
	Reason string
}

// Result is the output of Generate.
type Result struct {
	Rules  map[string]Rule
	Failed []Failure
	// Merged counts works whose rule key collided with an earlier work.
	Merged int
}

// Generate builds one rule per work name. Rules are keyed "<season> <name>";
// a later work with the same key replaces the earlier rule.
func Generate(resolutions []anime.Resolution, opts Options) Result {
	mustNotContain := opts.MustNotContain
	if strings.TrimSpace(mustNotContain) == "" {
		mustNotContain = DefaultMustNotContain
	}
	category := "Anime/" + opts.Season
	result := Result{Rules: make(map[string]Rule, len(resolutions))}
	for _, res := range resolutions {
		name := WorkName(res)
		if name == "" {
			result.Failed = append(result.Failed, Failure{Name: res.Work.OriginalTitle, Reason: "work has no usable name"})
			continue
		}
		mustContain := MustContain(PatternNames(res))
		if _, err := regexp.Compile(mustContain); err != nil {
			result.Failed = append(result.Failed, Failure{Name: name, Reason: fmt.Sprintf("invalid mustContain pattern: %v", err)})
			continue
		}
		savePath := strings.Join([]string{opts.RootPath, opts.Season, Sanitize(name)}, `\`)
		key := opts.Season + " " + name
		if _, exists := result.Rules[key]; exists {
			result.Merged++
		}
		result.Rules[key] = newRule(category, savePath, mustContain, mustNotContain, opts.Feeds)
	}
	return result
}

// WorkName is the localized title when known, otherwise the cleaned title.
func WorkName(res anime.Resolution) string {
	if name := strings.TrimSpace(res.LocalizedTitle); res.Matched && name != "" {
		return name
	}
	return strings.TrimSpace(res.Work.DisplayTitle())
}

// PatternNames lists the distinct names a rule should match, sorted.
func PatternNames(res anime.Resolution) []string {
	names := []string{WorkName(res)}
	if res.Matched {
		names = append(names, res.Aliases...)
		names = append(names, res.Work.CleanedTitle)
	} else {
		names = append(names, res.Work.Keywords...)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// MustContain renders the mustContain regex for names.
func MustContain(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = regexp.QuoteMeta(name)
	}
	return fmt.Sprintf(`.+(%s).+(%s.+%s|%s.+%s).+`,
		strings.Join(quoted, "|"), qualityTags, subtitleTags, subtitleTags, qualityTags)
}

// Sanitize makes name safe as a directory name by widening characters that
// are illegal in Windows file names to their fullwidth forms.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(illegalNameRunes, r):
			b.WriteString(width.Widen.String(string(r)))
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	if sanitized := strings.TrimSpace(b.String()); sanitized != "" {
		return sanitized
	}
	return unknownWorkName
}

func toForwardSlashes(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}
