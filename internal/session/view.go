package session

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/plaintext"
	"github.com/starford/quire/internal/search"
)

const (
	previewLen     = 100
	wordsPerMinute = 200
)

// View is a render-ready snapshot of the session. Title, Preview and Snippet
// fields of list items and results are HTML carrying highlight spans.
type View struct {
	Mode         Mode            `json:"mode"`
	ActiveID     string          `json:"active_id,omitempty"`
	Draft        Draft           `json:"draft"`
	Query        string          `json:"query"`
	Items        []ListItem      `json:"items"`
	Results      []ResultItem    `json:"results"`
	CountLabel   string          `json:"count_label"`
	Stats        Stats           `json:"stats"`
	LastModified string          `json:"last_modified"`
	Formats      map[string]bool `json:"formats"`
}

// Draft is the editor content, possibly not yet committed.
type Draft struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ListItem is one sidebar entry.
type ListItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Preview   string `json:"preview"`
	Timestamp string `json:"timestamp"`
	Active    bool   `json:"active"`
}

// ResultItem is one entry of the search results view.
type ResultItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Stats are the status bar counters for the draft.
type Stats struct {
	Words   int `json:"words"`
	Chars   int `json:"chars"`
	Minutes int `json:"minutes"`
}

// Snapshot renders the current state. The sidebar is filtered by the last
// executed query; results are filled only in search mode.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.store.Notes()
	tokens := parser.Parse(c.applied)
	shown := search.Search(all, tokens)
	now := c.now()

	v := View{
		Mode:     c.mode,
		ActiveID: c.activeID,
		Draft:    Draft{Title: c.title, Body: c.body},
		Query:    c.query,
		Items: lo.Map(shown, func(n models.Note, _ int) ListItem {
			return c.listItem(n, tokens, now)
		}),
		Results:    []ResultItem{},
		CountLabel: countLabel(len(shown), len(all), c.applied != ""),
		Formats:    c.formatStatesLocked(),
	}
	if c.mode == ModeSearch {
		v.Results = lo.Map(shown, func(n models.Note, _ int) ResultItem {
			return resultItem(n, tokens)
		})
	}
	if c.mode == ModeEditor {
		v.Stats = draftStats(c.body)
		if n, ok := c.store.Get(c.activeID); ok {
			v.LastModified = "Modified: " + n.Timestamp.In(now.Location()).Format("Jan 2, 2006, 15:04")
		}
	}
	return v
}

func (c *Controller) listItem(n models.Note, tokens []models.SearchToken, now time.Time) ListItem {
	preview := truncate(plaintext.Text(n.Content), previewLen)
	return ListItem{
		ID:        n.ID,
		Title:     search.Highlight(displayTitle(n.Title), tokens),
		Preview:   search.Highlight(preview, tokens),
		Timestamp: timestampLabel(n.Timestamp, now),
		Active:    n.ID == c.activeID,
	}
}

func resultItem(n models.Note, tokens []models.SearchToken) ResultItem {
	return ResultItem{
		ID:      n.ID,
		Title:   search.HighlightTitle(displayTitle(n.Title), tokens),
		Snippet: search.HighlightExcerpt(search.Snippet(plaintext.Text(n.Content), tokens)),
	}
}

func countLabel(shown, total int, filtered bool) string {
	if !filtered || shown == total {
		if total == 1 {
			return "1 note"
		}
		return fmt.Sprintf("%d notes", total)
	}
	return fmt.Sprintf("Found %d of %d", shown, total)
}

// timestampLabel shows the time for today, "Yesterday", or the date.
func timestampLabel(ts, now time.Time) string {
	ts = ts.In(now.Location())
	y, m, d := ts.Date()
	ny, nm, nd := now.Date()
	if y == ny && m == nm && d == nd {
		return ts.Format("15:04")
	}
	py, pm, pd := now.AddDate(0, 0, -1).Date()
	if y == py && m == pm && d == pd {
		return "Yesterday"
	}
	return ts.Format("Jan 2, 2006")
}

func draftStats(body string) Stats {
	text := plaintext.Text(body)
	words := len(strings.Fields(text))
	s := Stats{Words: words, Chars: utf8.RuneCountInString(text)}
	if words > 0 {
		s.Minutes = max(1, int(math.Ceil(float64(words)/wordsPerMinute)))
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
