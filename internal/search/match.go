package search

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/starford/quire/internal/models"
)

// Match weights. A field hit is weighted by how well the term lines up with
// word boundaries; title hits count double.
const (
	WeightExact     = 10
	WeightPrefix    = 5
	WeightSubstring = 2

	titleMultiplier = 2
	bodyMultiplier  = 1
)

type matcher struct {
	re    *regexp.Regexp
	exact bool
}

// compile builds the match test for tok. It returns nil when no pattern can be
// built; a nil matcher never matches.
func compile(tok models.SearchToken) *matcher {
	if tok.Text == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(tok.Text))
	if err != nil {
		return nil
	}
	return &matcher{re: re, exact: tok.Exact}
}

// weight returns the best match weight of m in text, or 0 when absent.
func (m *matcher) weight(text string) int {
	if m == nil || text == "" {
		return 0
	}
	if m.exact {
		if m.re.MatchString(text) {
			return WeightExact
		}
		return 0
	}
	best := 0
	for _, loc := range m.re.FindAllStringIndex(text, -1) {
		startsWord := loc[0] == 0 || !isWordRune(lastRune(text[:loc[0]]))
		endsWord := loc[1] == len(text) || !isWordRune(firstRune(text[loc[1]:]))
		switch {
		case startsWord && endsWord:
			return WeightExact
		case startsWord:
			best = max(best, WeightPrefix)
		default:
			best = max(best, WeightSubstring)
		}
	}
	return best
}

// index returns the byte offset of the first occurrence of m in text, or -1.
func (m *matcher) index(text string) int {
	if m == nil {
		return -1
	}
	loc := m.re.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func (m *matcher) all(text string) [][]int {
	if m == nil {
		return nil
	}
	return m.re.FindAllStringIndex(text, -1)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}
