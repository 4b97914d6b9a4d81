// Package notestore owns the ordered in-memory note collection and its
// persistence.
package notestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/kv"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notify"
)

// Store is the note collection, kept sorted by timestamp, most recent first.
// All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	notes []models.Note

	kv       kv.Store
	newID    func() string
	now      func() time.Time
	notifier notify.Notifier
	onChange func()
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides note id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithNotifier sets where recoverable storage errors are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithOnChange registers a callback run after every persisted mutation.
func WithOnChange(fn func()) Option {
	return func(s *Store) { s.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty store persisting into backend. Call LoadAll to read
// the persisted collection.
func New(backend kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:       backend,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		notifier: notify.Discard,
		onChange: func() {},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notes returns a copy of the collection in display order.
func (s *Store) Notes() []models.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notes)
}

// Len returns the number of notes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// Get returns the note with id.
func (s *Store) Get(id string) (models.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.notes[i], true
	}
	return models.Note{}, false
}

// Create inserts an empty note at the front and persists.
func (s *Store) Create() (models.Note, error) {
	s.mu.Lock()
	n := models.Note{ID: s.newID(), Timestamp: s.now()}
	s.notes = slices.Insert(s.notes, 0, n)
	err := s.persistLocked()
	s.mu.Unlock()

	s.afterChange(err)
	return n, err
}

// Update replaces title and content of note id. When both are unchanged it
// does nothing and reports false: no timestamp change, no reorder, no write.
// Otherwise the note gets a fresh timestamp and moves to the front.
func (s *Store) Update(id, title, content string) (bool, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false, fmt.Errorf("notestore: update %s: %w", id, apperr.ErrNotFound)
	}
	n := s.notes[i]
	if n.Title == title && n.Content == content {
		s.mu.Unlock()
		return false, nil
	}
	n.Title = title
	n.Content = content
	n.Timestamp = s.now()
	s.notes = slices.Delete(s.notes, i, i+1)
	s.notes = slices.Insert(s.notes, 0, n)
	err := s.persistLocked()
	s.mu.Unlock()

	s.afterChange(err)
	return true, err
}

// Delete removes note id and persists. Confirmation is the caller's job.
func (s *Store) Delete(id string) (models.Note, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Note{}, fmt.Errorf("notestore: delete %s: %w", id, apperr.ErrNotFound)
	}
	n := s.notes[i]
	s.notes = slices.Delete(s.notes, i, i+1)
	err := s.persistLocked()
	s.mu.Unlock()

	s.afterChange(err)
	return n, err
}

// LoadAll replaces the collection with the persisted one. A blob that cannot
// be parsed is cleared and the store starts empty; the returned error wraps
// apperr.ErrStorageCorrupt and has already been reported to the notifier.
// When the backend cannot be read at all, storage and the in-memory
// collection are left as they are and the error wraps
// apperr.ErrStorageReadFailed.
func (s *Store) LoadAll() error {
	raw, ok, err := s.kv.Get(kv.KeyNotes)
	if err != nil {
		s.logger.Error("read notes failed", slog.String("error", err.Error()))
		s.notifier.Notify("Error loading notes. Showing the last loaded state.", true)
		return fmt.Errorf("notestore: load: %w: %v", apperr.ErrStorageReadFailed, err)
	}

	var notes []models.Note
	if ok {
		notes, err = s.decodeStored([]byte(raw))
		if err != nil {
			return s.resetCorrupt(err)
		}
	}

	s.mu.Lock()
	s.notes = notes
	s.mu.Unlock()

	s.logger.Info("notes loaded", slog.Int("count", len(notes)))
	return nil
}

func (s *Store) resetCorrupt(cause error) error {
	s.mu.Lock()
	s.notes = nil
	s.mu.Unlock()

	if err := s.kv.Delete(kv.KeyNotes); err != nil {
		s.logger.Warn("clear corrupt notes failed", slog.String("error", err.Error()))
	}
	s.logger.Error("load notes failed", slog.String("error", cause.Error()))
	s.notifier.Notify("Error loading notes. Storage might be corrupted.", true)
	return fmt.Errorf("notestore: load: %w: %v", apperr.ErrStorageCorrupt, cause)
}

// decodeStored parses the persisted blob, normalising every record field by
// field: missing ids and timestamps are generated, non-string titles and
// contents become empty, duplicate ids are replaced.
func (s *Store) decodeStored(data []byte) ([]models.Note, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	notes := make([]models.Note, 0, len(items))
	for i, item := range items {
		if trimmed := bytes.TrimSpace(item); len(trimmed) == 0 || trimmed[0] != '{' {
			s.logger.Warn("skipping non-object stored note", slog.Int("index", i))
			continue
		}
		var r record
		if err := json.Unmarshal(item, &r); err != nil {
			s.logger.Warn("skipping malformed stored note", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		n := models.Note{
			ID:      r.id(),
			Title:   r.title(),
			Content: r.content(),
		}
		if _, dup := seen[n.ID]; n.ID == "" || dup {
			n.ID = s.newID()
		}
		seen[n.ID] = struct{}{}

		ts, ok := r.timestamp()
		if !ok {
			ts = s.now()
		}
		n.Timestamp = ts
		notes = append(notes, n)
	}
	sortByRecency(notes)
	return notes, nil
}

// Persist writes the whole collection. A failed write leaves the in-memory
// state untouched, is reported to the notifier and returned wrapped in
// apperr.ErrStorageWriteFailed.
func (s *Store) Persist() error {
	s.mu.RLock()
	err := s.persistLocked()
	s.mu.RUnlock()
	if err != nil {
		s.reportWriteFailure(err)
	}
	return err
}

func (s *Store) persistLocked() error {
	notes := s.notes
	if notes == nil {
		notes = []models.Note{}
	}
	data, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("notestore: encode: %w: %v", apperr.ErrStorageWriteFailed, err)
	}
	if err := s.kv.Set(kv.KeyNotes, string(data)); err != nil {
		return fmt.Errorf("notestore: write: %w: %v", apperr.ErrStorageWriteFailed, err)
	}
	return nil
}

func (s *Store) afterChange(persistErr error) {
	if persistErr != nil {
		s.reportWriteFailure(persistErr)
	}
	s.onChange()
}

func (s *Store) reportWriteFailure(err error) {
	s.logger.Error("save notes failed", slog.String("error", err.Error()))
	s.notifier.Notify("Error saving notes. Changes might be lost.", true)
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.notes, func(n models.Note) bool { return n.ID == id })
}

func sortByRecency(notes []models.Note) {
	slices.SortStableFunc(notes, func(a, b models.Note) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}

// IsNotFound reports whether err means the note does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
