// Package models defines the domain types for Quire.
package models

import "time"

// Note is a single user note. Content holds the rich-text markup produced by
// the editor surface.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenType is the operator class of a parsed search term.
type TokenType string

const (
	TokenNormal   TokenType = "normal"
	TokenRequired TokenType = "required"
	TokenExcluded TokenType = "excluded"
	TokenPhrase   TokenType = "phrase"
)

// SearchToken is one parsed unit of a search query.
type SearchToken struct {
	Text string    `json:"text"`
	Type TokenType `json:"type"`
	// Exact is set when the term was quoted in the query. Exact terms match
	// as plain substrings, others are matched against word boundaries.
	Exact bool `json:"exact"`
}

// Positive reports whether the token contributes matches (anything but an exclusion).
func (t SearchToken) Positive() bool {
	return t.Type != TokenExcluded
}
