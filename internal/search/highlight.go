package search

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/starford/quire/internal/models"
)

// Highlight markers wrapped around every term hit.
const (
	HighlightClass = "highlight-match"
	markOpen       = `<span class="` + HighlightClass + `">`
	markClose      = `</span>`
)

// highlightPolicy admits only highlight spans; everything else in a
// previously rendered fragment is stripped.
var highlightPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^` + HighlightClass + `$`)).OnElements("span")
	return p
}()

// Highlight HTML-escapes text and wraps every case-insensitive occurrence of a
// positive token in a highlight span.
func Highlight(text string, tokens []models.SearchToken) string {
	return render(text, findSpans(text, positiveMatchers(tokens)))
}

// HighlightTitle is Highlight for titles. A title that already carries
// highlight markup from an earlier pass is not wrapped again; it is only
// sanitized down to its highlight spans.
func HighlightTitle(title string, tokens []models.SearchToken) string {
	if IsHighlighted(title) {
		return highlightPolicy.Sanitize(title)
	}
	return Highlight(title, tokens)
}

// HighlightExcerpt renders e with its recorded match spans.
func HighlightExcerpt(e Excerpt) string {
	return render(e.Text, e.Matches)
}

// IsHighlighted reports whether s already contains highlight markup.
func IsHighlighted(s string) bool {
	return strings.Contains(s, HighlightClass)
}

func render(text string, spans []Span) string {
	var b strings.Builder
	b.Grow(len(text) + len(spans)*(len(markOpen)+len(markClose)))
	pos := 0
	for _, s := range spans {
		b.WriteString(html.EscapeString(text[pos:s.Start]))
		b.WriteString(markOpen)
		b.WriteString(html.EscapeString(text[s.Start:s.End]))
		b.WriteString(markClose)
		pos = s.End
	}
	b.WriteString(html.EscapeString(text[pos:]))
	return b.String()
}
