package notestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/plaintext"
)

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Added            int `json:"added"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	Rejected         int `json:"rejected"`
}

// Message is the user-facing summary of r.
func (r ImportResult) Message() string {
	if r.Added == 0 && r.SkippedDuplicate == 0 && r.Rejected == 0 {
		return "Selected file contains no notes."
	}
	msg := fmt.Sprintf("%d new note(s) imported.", r.Added)
	if r.SkippedDuplicate > 0 {
		msg += fmt.Sprintf(" %d existing notes skipped.", r.SkippedDuplicate)
	}
	if r.Rejected > 0 {
		msg += fmt.Sprintf(" %d invalid items ignored.", r.Rejected)
	}
	return msg
}

// Empty reports whether the imported document held no candidates at all.
func (r ImportResult) Empty() bool {
	return r.Added+r.SkippedDuplicate+r.Rejected == 0
}

// ImportMerge merges the notes of an import document into the store. The
// document is a JSON array of note-like records or an object with a "notes"
// array. A record is valid when it has a string content, a timestamp and, if
// present, a string id. Records whose id already exists are skipped. The
// merged collection is re-sorted by timestamp and persisted.
//
// Errors wrap apperr.ErrImportFormatInvalid or apperr.ErrImportNoValidRecords;
// in both cases the store is left untouched.
func (s *Store) ImportMerge(data []byte) (ImportResult, error) {
	candidates, err := importCandidates(data)
	if err != nil {
		return ImportResult{}, err
	}
	if len(candidates) == 0 {
		return ImportResult{}, nil
	}

	s.mu.Lock()
	existing := make(map[string]struct{}, len(s.notes))
	for _, n := range s.notes {
		existing[n.ID] = struct{}{}
	}

	var res ImportResult
	var fresh []models.Note
	for _, c := range candidates {
		n, ok := s.validCandidate(c)
		if !ok {
			res.Rejected++
			continue
		}
		if _, dup := existing[n.ID]; dup {
			res.SkippedDuplicate++
			continue
		}
		existing[n.ID] = struct{}{}
		fresh = append(fresh, n)
	}

	if res.Rejected == len(candidates) {
		s.mu.Unlock()
		return res, fmt.Errorf("notestore: import: %w", apperr.ErrImportNoValidRecords)
	}

	res.Added = len(fresh)
	s.notes = append(fresh, s.notes...)
	sortByRecency(s.notes)
	err = s.persistLocked()
	s.mu.Unlock()

	s.logger.Info("notes imported",
		slog.Int("added", res.Added),
		slog.Int("skipped", res.SkippedDuplicate),
		slog.Int("rejected", res.Rejected))
	s.afterChange(err)
	return res, err
}

func importCandidates(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("notestore: import: %w", apperr.ErrImportFormatInvalid)
	}

	var list []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("notestore: import: %w: %v", apperr.ErrImportFormatInvalid, err)
		}
		return list, nil
	}

	var wrapper struct {
		Notes json.RawMessage `json:"notes"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("notestore: import: %w: %v", apperr.ErrImportFormatInvalid, err)
	}
	if len(wrapper.Notes) == 0 || wrapper.Notes[0] != '[' {
		return nil, fmt.Errorf("notestore: import: %w", apperr.ErrImportFormatInvalid)
	}
	if err := json.Unmarshal(wrapper.Notes, &list); err != nil {
		return nil, fmt.Errorf("notestore: import: %w: %v", apperr.ErrImportFormatInvalid, err)
	}
	return list, nil
}

func (s *Store) validCandidate(raw json.RawMessage) (models.Note, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return models.Note{}, false
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.Note{}, false
	}
	content, ok := rawString(r.Content)
	if !ok || !r.idValid() {
		return models.Note{}, false
	}
	ts, ok := r.timestamp()
	if !ok {
		return models.Note{}, false
	}
	id := r.id()
	if id == "" {
		id = s.newID()
	}
	return models.Note{ID: id, Title: r.title(), Content: content, Timestamp: ts}, true
}

// Export is a downloadable file.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportAll renders the whole collection as a pretty-printed JSON array.
// An empty collection yields apperr.ErrNotFound.
func (s *Store) ExportAll() (Export, error) {
	notes := s.Notes()
	if len(notes) == 0 {
		return Export{}, fmt.Errorf("notestore: export: no notes: %w", apperr.ErrNotFound)
	}
	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return Export{}, fmt.Errorf("notestore: export: %w", err)
	}
	return Export{
		Filename:    "notes_export_" + s.now().Format("2006-01-02") + ".json",
		ContentType: "application/json; charset=utf-8",
		Data:        data,
	}, nil
}

// Export formats for a single note.
const (
	FormatText     = "txt"
	FormatMarkdown = "md"
)

// ExportNote renders one note as plain text ("Title: ...\n\n---\n\n<body>") or,
// with FormatMarkdown, as a Markdown document.
func (s *Store) ExportNote(id, format string) (Export, error) {
	n, ok := s.Get(id)
	if !ok {
		return Export{}, fmt.Errorf("notestore: export %s: %w", id, apperr.ErrNotFound)
	}

	switch format {
	case "", FormatText:
		body := "Title: " + n.Title + "\n\n---\n\n" + plaintext.Text(n.Content)
		return Export{
			Filename:    ExportFilename(n.Title, FormatText),
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(body),
		}, nil
	case FormatMarkdown:
		md, err := plaintext.Markdown(n.Content)
		if err != nil {
			return Export{}, fmt.Errorf("notestore: export %s: markdown: %w", id, err)
		}
		body := md
		if n.Title != "" {
			body = "# " + n.Title + "\n\n" + md
		}
		return Export{
			Filename:    ExportFilename(n.Title, FormatMarkdown),
			ContentType: "text/markdown; charset=utf-8",
			Data:        []byte(body),
		}, nil
	default:
		return Export{}, fmt.Errorf("notestore: export %s: unknown format %q", id, format)
	}
}

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9 _-]`)

// ExportFilename derives a file name from a note title, keeping only
// letters, digits, spaces, underscores and hyphens.
func ExportFilename(title, ext string) string {
	name := strings.TrimSpace(unsafeFilenameRe.ReplaceAllString(title, ""))
	if name == "" {
		name = "Untitled"
	}
	return name + "." + ext
}
