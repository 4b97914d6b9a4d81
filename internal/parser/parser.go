// Package parser tokenizes raw search queries into typed search terms.
package parser

import (
	"regexp"
	"strings"

	"github.com/starford/quire/internal/models"
)

// A term is a double-quoted phrase (an unterminated quote runs to the end of
// the input) or a run of word characters, hyphens and apostrophes. Either form
// may carry a leading + or - operator.
var termRe = regexp.MustCompile(`[+-]?"[^"]*"?|[+-]?[\w'-]+`)

// Parse splits query into search tokens in query order. Token text is
// lowercased and trimmed; terms that are empty once operators and quotes are
// stripped are dropped.
func Parse(query string) []models.SearchToken {
	matches := termRe.FindAllString(query, -1)
	tokens := make([]models.SearchToken, 0, len(matches))
	for _, raw := range matches {
		if tok, ok := parseTerm(raw); ok {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func parseTerm(raw string) (models.SearchToken, bool) {
	typ := models.TokenNormal
	text := raw
	switch {
	case strings.HasPrefix(text, "+"):
		typ = models.TokenRequired
		text = text[1:]
	case strings.HasPrefix(text, "-"):
		typ = models.TokenExcluded
		text = text[1:]
	}

	exact := false
	if strings.HasPrefix(text, `"`) {
		exact = true
		text = strings.TrimSuffix(text[1:], `"`)
		if typ == models.TokenNormal {
			typ = models.TokenPhrase
		}
	}

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return models.SearchToken{}, false
	}
	return models.SearchToken{Text: text, Type: typ, Exact: exact}, true
}

// PositiveTerms returns the tokens that are not exclusions, in query order.
func PositiveTerms(tokens []models.SearchToken) []models.SearchToken {
	out := make([]models.SearchToken, 0, len(tokens))
	for _, t := range tokens {
		if t.Positive() {
			out = append(out, t)
		}
	}
	return out
}
