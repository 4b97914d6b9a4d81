package search

import (
	"slices"
	"unicode/utf8"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
)

// Snippet window sizes, in characters.
const (
	SnippetDefaultLen = 250
	SnippetBefore     = 80
	SnippetAfter      = 170

	ellipsisPrefix = "... "
	ellipsisSuffix = " ..."
)

// Span is a half-open byte range [Start, End) inside an excerpt.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Excerpt is a bounded piece of note text with the positions of term hits.
type Excerpt struct {
	Text    string `json:"text"`
	Matches []Span `json:"matches"`
}

// Snippet picks the excerpt of text around the first hit of any positive
// token, scanning tokens in query order. Without a hit, the first
// SnippetDefaultLen characters are used.
func Snippet(text string, tokens []models.SearchToken) Excerpt {
	positive := positiveMatchers(tokens)

	first := -1
	for _, m := range positive {
		if i := m.index(text); i >= 0 {
			first = i
			break
		}
	}

	runes := []rune(text)
	var window, prefix, suffix string
	if first < 0 {
		window = string(runes[:min(len(runes), SnippetDefaultLen)])
	} else {
		at := utf8.RuneCountInString(text[:first])
		start := max(0, at-SnippetBefore)
		end := min(len(runes), at+SnippetAfter)
		window = string(runes[start:end])
		if start > 0 {
			prefix = ellipsisPrefix
		}
		if end < len(runes) {
			suffix = ellipsisSuffix
		}
	}

	spans := findSpans(window, positive)
	for i := range spans {
		spans[i].Start += len(prefix)
		spans[i].End += len(prefix)
	}
	return Excerpt{Text: prefix + window + suffix, Matches: spans}
}

func positiveMatchers(tokens []models.SearchToken) []*matcher {
	positive := parser.PositiveTerms(tokens)
	out := make([]*matcher, 0, len(positive))
	for _, t := range positive {
		if m := compile(models.SearchToken{Text: t.Text, Exact: true}); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// findSpans returns the sorted, non-overlapping case-insensitive occurrences
// of every matcher in text. Overlapping hits are merged into one span.
func findSpans(text string, matchers []*matcher) []Span {
	var spans []Span
	for _, m := range matchers {
		for _, loc := range m.all(text) {
			if loc[1] > loc[0] {
				spans = append(spans, Span{Start: loc[0], End: loc[1]})
			}
		}
	}
	if len(spans) == 0 {
		return []Span{}
	}
	slices.SortFunc(spans, func(a, b Span) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return b.End - a.End
	})
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			last.End = max(last.End, s.End)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
