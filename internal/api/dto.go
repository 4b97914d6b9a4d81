package api

import (
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/session"
)

// StateResponse is the full render-ready session snapshot.
type StateResponse = session.View

// Note is a stored note.
type Note = models.Note

// NoteListResponse wraps note listings. Score is set when a query was given.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// NoteListItem is a note with its relevance score.
type NoteListItem struct {
	models.Note
	Score int `json:"score,omitempty" example:"24"`
}

// DraftRequest updates the open draft. Omitted fields are left unchanged.
type DraftRequest struct {
	Title *string `json:"title,omitempty" example:"Groceries"`
	Body  *string `json:"body,omitempty" example:"<p>milk, eggs</p>"`
}

// PasteRequest inserts plain text into the draft.
type PasteRequest struct {
	Text string `json:"text" example:"line one\nline two" validate:"required"`
}

// QueryRequest sets the search query. Immediate skips the debounce.
type QueryRequest struct {
	Query     string `json:"q" example:"eggs -shopping"`
	Immediate bool   `json:"immediate,omitempty"`
}

// FormatRequest runs a toolbar command or a keyboard shortcut.
type FormatRequest struct {
	Command  string `json:"command,omitempty" example:"formatBlock"`
	Value    string `json:"value,omitempty" example:"blockquote"`
	Shortcut string `json:"shortcut,omitempty" example:"b"`
}

// FormatResponse reports the toolbar state after a format command.
type FormatResponse struct {
	Applied bool            `json:"applied"`
	States  map[string]bool `json:"states" validate:"required"`
}

// DeleteResponse reports the outcome of a confirmation-gated delete.
type DeleteResponse struct {
	Deleted bool   `json:"deleted"`
	Prompt  string `json:"prompt" example:"Are you sure you want to delete \"Groceries\"? This cannot be undone."`
}

// ImportResponse reports import counters and the user-facing summary.
type ImportResponse struct {
	notestore.ImportResult
	Message string `json:"message" example:"2 new note(s) imported."`
}

// PrefsRequest updates preferences. Omitted fields are left unchanged.
type PrefsRequest struct {
	DarkMode     *bool `json:"dark_mode,omitempty"`
	SidebarWidth *int  `json:"sidebar_width,omitempty" example:"320"`
}
