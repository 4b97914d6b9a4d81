// Package session drives an editing session: which note is open, its
// unsaved draft, the view mode, and the autosave and search debounces.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/debounce"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/notify"
)

// Mode is what the main view shows.
type Mode string

const (
	ModePlaceholder Mode = "placeholder"
	ModeEditor      Mode = "editor"
	ModeSearch      Mode = "search"
)

// Default quiet periods.
const (
	DefaultAutosaveDelay = 1500 * time.Millisecond
	DefaultSearchDelay   = 300 * time.Millisecond
)

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Controller owns the session state. All methods are safe for concurrent
// use; debounced actions run under the same lock as the methods.
type Controller struct {
	mu sync.Mutex

	store     *notestore.Store
	formatter Formatter
	notifier  notify.Notifier
	logger    *slog.Logger
	onChange  func()
	now       func() time.Time

	sched         debounce.Scheduler
	autosaveDelay time.Duration
	searchDelay   time.Duration
	autosave      *debounce.Task
	search        *debounce.Task

	mode     Mode
	activeID string
	title    string
	body     string
	query    string // as typed
	applied  string // last executed search
}

// Option configures a Controller.
type Option func(*Controller)

// WithAutosaveDelay sets the quiet period before a draft is committed.
func WithAutosaveDelay(d time.Duration) Option {
	return func(c *Controller) { c.autosaveDelay = d }
}

// WithSearchDelay sets the quiet period before a typed query runs.
func WithSearchDelay(d time.Duration) Option {
	return func(c *Controller) { c.searchDelay = d }
}

// WithScheduler replaces the timer source of both debounces.
func WithScheduler(s debounce.Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithFormatter attaches the rich-text surface.
func WithFormatter(f Formatter) Option {
	return func(c *Controller) { c.formatter = f }
}

// WithNotifier sets where user-facing messages go.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOnChange registers a callback run after every session state change.
// It is called with the controller lock held and must not call back into
// the controller or block.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithClock sets the time source for relative timestamp labels.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New returns a controller in placeholder mode over store.
func New(store *notestore.Store, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		formatter:     TagFormatter{},
		notifier:      notify.Discard,
		logger:        slog.Default(),
		onChange:      func() {},
		now:           time.Now,
		sched:         debounce.System,
		autosaveDelay: DefaultAutosaveDelay,
		searchDelay:   DefaultSearchDelay,
		mode:          ModePlaceholder,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.autosave = debounce.New(c.autosaveDelay, c.sched, &c.mu)
	c.search = debounce.New(c.searchDelay, c.sched, &c.mu)
	return c
}

// Mode returns the current view mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ActiveID returns the id of the open note, or "".
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// CreateNote commits the open draft, creates an empty note and opens it.
// Creating while searching clears the query.
func (c *Controller) CreateNote() (models.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flushLocked()
	n, err := c.store.Create()
	if err = settle(err); err != nil {
		return models.Note{}, fmt.Errorf("session: create: %w", err)
	}
	if c.mode == ModeSearch {
		c.clearQueryLocked()
	}
	c.loadLocked(n)
	c.changed()
	return n, nil
}

// Select opens note id after committing the open draft. Selecting the note
// already open in the editor does nothing. A missing note resets the view
// and returns apperr.ErrNotFound.
func (c *Controller) Select(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == c.activeID && c.mode == ModeEditor {
		return nil
	}
	c.flushLocked()
	n, ok := c.store.Get(id)
	if !ok {
		c.logger.Warn("select missing note", slog.String("id", id))
		c.resetLocked()
		c.changed()
		return fmt.Errorf("session: select %s: %w", id, apperr.ErrNotFound)
	}
	c.loadLocked(n)
	c.changed()
	return nil
}

// EditTitle replaces the draft title and restarts the autosave delay.
func (c *Controller) EditTitle(title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeEditor {
		return fmt.Errorf("session: edit title: %w", apperr.ErrNoActiveNote)
	}
	c.title = title
	c.touchLocked()
	return nil
}

// EditBody replaces the draft body and restarts the autosave delay.
func (c *Controller) EditBody(body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeEditor {
		return fmt.Errorf("session: edit body: %w", apperr.ErrNoActiveNote)
	}
	c.body = body
	c.touchLocked()
	return nil
}

// EditDraft replaces both draft fields at once.
func (c *Controller) EditDraft(title, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeEditor {
		return fmt.Errorf("session: edit: %w", apperr.ErrNoActiveNote)
	}
	c.title, c.body = title, body
	c.touchLocked()
	return nil
}

// Paste inserts text at the end of the draft body as plain text.
func (c *Controller) Paste(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeEditor {
		return fmt.Errorf("session: paste: %w", apperr.ErrNoActiveNote)
	}
	if text == "" {
		return nil
	}
	c.body += PlainPaste(text)
	c.touchLocked()
	return nil
}

// Flush commits the draft now instead of waiting for the autosave delay.
func (c *Controller) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.flushLocked()
	c.changed()
	return err
}

// DeleteActive asks confirmer to approve deleting the open note and deletes
// it. It reports whether the note was deleted; declining is not an error.
// Deleting while searching re-runs the search and stays in search mode.
//
// Confirm is called with the controller lock held.
func (c *Controller) DeleteActive(confirmer Confirmer) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeID == "" {
		return false, fmt.Errorf("session: delete: %w", apperr.ErrNoActiveNote)
	}
	label := displayTitle(c.title)
	prompt := `Are you sure you want to delete "` + label + `"? This cannot be undone.`
	if !confirmer.Confirm(prompt) {
		return false, nil
	}

	c.autosave.Cancel()
	id := c.activeID
	wasSearching := c.mode == ModeSearch
	c.clearActiveLocked()

	if _, err := c.store.Delete(id); settle(err) != nil {
		c.resetLocked()
		c.changed()
		return false, fmt.Errorf("session: delete: %w", err)
	}
	if wasSearching {
		c.search.Cancel()
		c.runSearchLocked(c.query)
	} else {
		c.resetLocked()
	}
	c.notifier.Notify(`Note "`+label+`" deleted.`, false)
	c.changed()
	return true, nil
}

// SetQuery records typed search input and runs it once the search delay
// passes without further input.
func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = q
	c.search.Schedule(func() {
		c.runSearchLocked(c.query)
		c.changed()
	})
}

// Search runs q immediately, dropping any pending debounced query.
func (c *Controller) Search(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.search.Cancel()
	c.query = q
	c.runSearchLocked(q)
	c.changed()
}

// Reset commits the draft, closes the open note and shows the placeholder.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
	c.resetLocked()
	c.changed()
}

// ApplyFormat runs a formatting command against the draft body.
func (c *Controller) ApplyFormat(command, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyFormatLocked(command, value)
}

// Shortcut handles a ctrl/cmd key combination. It reports whether key is
// bound to a command.
func (c *Controller) Shortcut(key string) (bool, error) {
	command, ok := shortcuts[strings.ToLower(key)]
	if !ok {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return true, c.applyFormatLocked(command, "")
}

// FormatStates reports which toolbar toggles are in effect. All are off
// outside the editor.
func (c *Controller) FormatStates() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formatStatesLocked()
}

// ExportActive commits the draft and renders the open note.
func (c *Controller) ExportActive(format string) (notestore.Export, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeEditor || c.activeID == "" {
		c.notifier.Notify("No active note selected to export.", true)
		return notestore.Export{}, fmt.Errorf("session: export: %w", apperr.ErrNoActiveNote)
	}
	c.flushLocked()
	exp, err := c.store.ExportNote(c.activeID, format)
	if err != nil {
		c.notifier.Notify("Failed to export current note.", true)
		return notestore.Export{}, fmt.Errorf("session: export: %w", err)
	}
	c.notifier.Notify(`Note "`+displayTitle(c.title)+`" exported.`, false)
	return exp, nil
}

// ExportAll renders the whole collection.
func (c *Controller) ExportAll() (notestore.Export, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flushLocked()
	exp, err := c.store.ExportAll()
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.notifier.Notify("No notes to export.", true)
		return notestore.Export{}, fmt.Errorf("session: export all: %w", err)
	case err != nil:
		c.notifier.Notify("Failed to export notes.", true)
		return notestore.Export{}, fmt.Errorf("session: export all: %w", err)
	}
	c.notifier.Notify("All notes exported successfully!", false)
	return exp, nil
}

// Import merges an import document into the collection. On success the
// query is cleared if searching and the view resets to the placeholder.
// Every outcome is reported to the notifier.
func (c *Controller) Import(data []byte) (notestore.ImportResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flushLocked()
	res, err := c.store.ImportMerge(data)
	if err = settle(err); err != nil {
		c.notifier.Notify("Import failed: "+importFailure(err), true)
		return res, fmt.Errorf("session: import: %w", err)
	}
	if res.Empty() {
		c.notifier.Notify(res.Message(), true)
		return res, nil
	}
	if c.mode == ModeSearch {
		c.clearQueryLocked()
	}
	c.resetLocked()
	c.notifier.Notify(res.Message(), false)
	c.changed()
	return res, nil
}

// ImportFile reads path and imports it. A read failure is reported as
// "Error reading file." and wraps apperr.ErrImportReadFailed.
func (c *Controller) ImportFile(path string) (notestore.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return notestore.ImportResult{}, c.importReadFailed(path, err)
	}
	defer f.Close()
	return c.ImportReader(path, f)
}

// ImportReader reads an import document from r and imports it. name only
// labels log lines. Read failures are reported like ImportFile's.
func (c *Controller) ImportReader(name string, r io.Reader) (notestore.ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return notestore.ImportResult{}, c.importReadFailed(name, err)
	}
	return c.Import(data)
}

func (c *Controller) importReadFailed(name string, err error) error {
	c.logger.Warn("read import file", slog.String("name", name), slog.String("error", err.Error()))
	c.notifier.Notify("Error reading file.", true)
	return fmt.Errorf("session: import %s: %w: %v", name, apperr.ErrImportReadFailed, err)
}

// Close drops pending debounces and commits the draft.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.search.Cancel()
	return c.flushLocked()
}

func (c *Controller) applyFormatLocked(command, value string) error {
	if c.mode != ModeEditor {
		return fmt.Errorf("session: format: %w", apperr.ErrNoActiveNote)
	}
	out, err := c.formatter.ApplyFormat(c.body, command, value)
	if err != nil {
		return fmt.Errorf("session: format: %w", err)
	}
	c.body = out
	c.touchLocked()
	return nil
}

func (c *Controller) formatStatesLocked() map[string]bool {
	states := make(map[string]bool, len(ToolbarCommands))
	for _, cmd := range ToolbarCommands {
		states[cmd] = c.mode == ModeEditor && c.formatter.FormatActive(c.body, cmd)
	}
	return states
}

// touchLocked restarts the autosave delay after a draft edit.
func (c *Controller) touchLocked() {
	c.scheduleAutosaveLocked()
	c.changed()
}

func (c *Controller) scheduleAutosaveLocked() {
	c.autosave.Schedule(func() {
		if c.mode != ModeEditor {
			return
		}
		c.commitLocked()
		c.changed()
	})
}

// flushLocked cancels the autosave timer and commits the draft directly.
func (c *Controller) flushLocked() error {
	c.autosave.Cancel()
	return c.commitLocked()
}

// commitLocked writes the draft to the open note if it changed. Storage
// write failures have already reached the notifier and are not returned.
func (c *Controller) commitLocked() error {
	if c.activeID == "" {
		return nil
	}
	changed, err := c.store.Update(c.activeID, c.title, c.body)
	if err != nil {
		c.logger.Warn("commit draft", slog.String("id", c.activeID), slog.String("error", err.Error()))
		return settle(err)
	}
	if changed {
		c.logger.Debug("draft committed", slog.String("id", c.activeID))
	}
	return nil
}

func (c *Controller) loadLocked(n models.Note) {
	c.activeID = n.ID
	c.title = n.Title
	c.body = n.Content
	c.setModeLocked(ModeEditor)
}

// setModeLocked switches the view. Entering the editor without an existing
// active note falls back to the placeholder.
func (c *Controller) setModeLocked(m Mode) {
	if m == ModeEditor {
		if _, ok := c.store.Get(c.activeID); c.activeID == "" || !ok {
			c.logger.Warn("no active note for editor, showing placeholder", slog.String("id", c.activeID))
			c.clearActiveLocked()
			m = ModePlaceholder
		}
	}
	c.mode = m
}

// runSearchLocked executes q. An empty query leaves search mode.
func (c *Controller) runSearchLocked(q string) {
	q = strings.TrimSpace(q)
	if q == "" {
		c.applied = ""
		if c.activeID == "" {
			c.setModeLocked(ModePlaceholder)
			return
		}
		c.setModeLocked(ModeEditor)
		if c.mode == ModeEditor && c.dirtyLocked() {
			c.scheduleAutosaveLocked()
		}
		return
	}
	c.applied = q
	c.mode = ModeSearch
}

func (c *Controller) dirtyLocked() bool {
	n, ok := c.store.Get(c.activeID)
	return ok && (n.Title != c.title || n.Content != c.body)
}

func (c *Controller) clearQueryLocked() {
	c.search.Cancel()
	c.query = ""
	c.applied = ""
}

func (c *Controller) clearActiveLocked() {
	c.activeID = ""
	c.title = ""
	c.body = ""
}

func (c *Controller) resetLocked() {
	c.autosave.Cancel()
	c.clearActiveLocked()
	c.mode = ModePlaceholder
}

func (c *Controller) changed() {
	c.onChange()
}

// settle drops storage write failures, which the store has already reported.
func settle(err error) error {
	if errors.Is(err, apperr.ErrStorageWriteFailed) {
		return nil
	}
	return err
}

func importFailure(err error) string {
	switch {
	case errors.Is(err, apperr.ErrImportFormatInvalid):
		return "Invalid format: Expected an array of notes."
	case errors.Is(err, apperr.ErrImportNoValidRecords):
		return "No valid notes found in the file."
	}
	return err.Error()
}

func displayTitle(title string) string {
	if title == "" {
		return "Untitled"
	}
	return title
}
