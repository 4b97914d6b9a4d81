// Package search ranks notes against parsed queries and renders match context.
package search

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/plaintext"
)

// Result is a ranked search hit.
type Result struct {
	Note  models.Note
	Score int
}

// Search returns the notes that satisfy tokens, most relevant first. Equal
// scores keep their input order. With no tokens the input is returned as is.
func Search(notes []models.Note, tokens []models.SearchToken) []models.Note {
	return lo.Map(Rank(notes, tokens), func(r Result, _ int) models.Note {
		return r.Note
	})
}

// Rank is Search with the scores attached.
func Rank(notes []models.Note, tokens []models.SearchToken) []Result {
	if len(tokens) == 0 {
		return lo.Map(notes, func(n models.Note, _ int) Result {
			return Result{Note: n}
		})
	}

	matchers := lo.Map(tokens, func(t models.SearchToken, _ int) *matcher {
		return compile(t)
	})
	hasPositive := lo.ContainsBy(tokens, func(t models.SearchToken) bool {
		return t.Positive()
	})

	results := make([]Result, 0, len(notes))
	for _, n := range notes {
		score, ok := scoreNote(n, tokens, matchers, hasPositive)
		if ok {
			results = append(results, Result{Note: n, Score: score})
		}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return b.Score - a.Score
	})
	return results
}

// scoreNote reports the relevance of n and whether it passes the boolean
// filters: every required term present, no excluded term present, and at
// least one positive hit when the query has positive terms.
func scoreNote(n models.Note, tokens []models.SearchToken, matchers []*matcher, hasPositive bool) (int, bool) {
	title := strings.ToLower(n.Title)
	body := strings.ToLower(plaintext.Text(n.Content))

	score := 0
	matchedPositive := false
	for i, tok := range tokens {
		m := matchers[i]
		tw := m.weight(title)
		bw := m.weight(body)
		found := tw > 0 || bw > 0

		switch {
		case tok.Type == models.TokenExcluded:
			if found {
				return 0, false
			}
			continue
		case tok.Type == models.TokenRequired && !found:
			return 0, false
		}
		if found {
			matchedPositive = true
			score += tw*titleMultiplier + bw*bodyMultiplier
		}
	}

	if hasPositive && !matchedPositive {
		return 0, false
	}
	return score, true
}
