package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/prefs"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/session"
)

// Handler holds API route handlers.
type Handler struct {
	ctrl          *session.Controller
	store         *notestore.Store
	prefs         *prefs.Store
	onPrefsChange func()
}

// NewHandler creates a new Handler. onPrefsChange, if non-nil, runs after
// every successful preferences write.
func NewHandler(ctrl *session.Controller, store *notestore.Store, p *prefs.Store, onPrefsChange func()) *Handler {
	if onPrefsChange == nil {
		onPrefsChange = func() {}
	}
	return &Handler{ctrl: ctrl, store: store, prefs: p, onPrefsChange: onPrefsChange}
}

// GetState handles GET /api/state.
//
//	@Summary		Render-ready session snapshot
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	StateResponse
//	@Success		304	"Unchanged since If-None-Match"
//	@Security		BearerAuth
//	@Router			/state [get]
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeCacheableJSON(w, r, h.ctrl.Snapshot())
}

// ListNotes handles GET /api/notes. With ?q= the notes are filtered and
// ranked by the query.
//
//	@Summary		List notes, optionally ranked by a query
//	@Tags			notes
//	@Produce		json
//	@Param			q	query		string	false	"Search query"
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes := h.store.Notes()
	ranked := search.Rank(notes, parser.Parse(r.URL.Query().Get("q")))

	items := make([]NoteListItem, 0, len(ranked))
	for _, res := range ranked {
		items = append(items, NoteListItem{Note: res.Note, Score: res.Score})
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a stored note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create an empty note and open it
//	@Tags			notes
//	@Produce		json
//	@Success		201	{object}	Note
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, _ *http.Request) {
	n, err := h.ctrl.CreateNote()
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// SelectNote handles POST /api/notes/{id}/select.
//
//	@Summary		Open a note in the editor
//	@Tags			session
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note opened"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/select [post]
func (h *Handler) SelectNote(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Select(chi.URLParam(r, "id")); err != nil {
		writeError(w, "select note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportNote handles GET /api/notes/{id}/export.
//
//	@Summary		Download one note as text or Markdown
//	@Tags			notes
//	@Produce		plain
//	@Param			id		path	string	true	"Note id"
//	@Param			format	query	string	false	"Export format"	Enums(txt, md)
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/export [get]
func (h *Handler) ExportNote(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if !validFormat(format) {
		writeJSON(w, http.StatusBadRequest, errorBody("format must be txt or md"))
		return
	}
	exp, err := h.store.ExportNote(chi.URLParam(r, "id"), format)
	if err != nil {
		writeError(w, "export note", err)
		return
	}
	writeDownload(w, exp)
}

// UpdateDraft handles PUT /api/session/draft.
//
//	@Summary		Edit the open draft; autosaves after the quiet period
//	@Tags			session
//	@Accept			json
//	@Param			body	body	DraftRequest	true	"Draft fields"
//	@Success		204		"Draft updated"
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/draft [put]
func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var err error
	switch {
	case req.Title != nil && req.Body != nil:
		err = h.ctrl.EditDraft(*req.Title, *req.Body)
	case req.Title != nil:
		err = h.ctrl.EditTitle(*req.Title)
	case req.Body != nil:
		err = h.ctrl.EditBody(*req.Body)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("title or body is required"))
		return
	}
	if err != nil {
		writeError(w, "update draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Paste handles POST /api/session/paste.
//
//	@Summary		Insert plain text into the draft
//	@Tags			session
//	@Accept			json
//	@Param			body	body	PasteRequest	true	"Pasted text"
//	@Success		204		"Inserted"
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/paste [post]
func (h *Handler) Paste(w http.ResponseWriter, r *http.Request) {
	var req PasteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.ctrl.Paste(req.Text); err != nil {
		writeError(w, "paste", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Flush handles POST /api/session/flush.
//
//	@Summary		Commit the draft now
//	@Tags			session
//	@Success		204	"Committed"
//	@Security		BearerAuth
//	@Router			/session/flush [post]
func (h *Handler) Flush(w http.ResponseWriter, _ *http.Request) {
	if err := h.ctrl.Flush(); err != nil {
		writeError(w, "flush", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /api/session/reset.
//
//	@Summary		Close the open note
//	@Tags			session
//	@Success		204	"Reset"
//	@Security		BearerAuth
//	@Router			/session/reset [post]
func (h *Handler) Reset(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// DeleteActive handles DELETE /api/session/active. The delete happens only
// with ?confirm=true; otherwise the confirmation prompt is returned.
//
//	@Summary		Delete the open note
//	@Tags			session
//	@Produce		json
//	@Param			confirm	query		bool	false	"Approve the deletion"
//	@Success		200		{object}	DeleteResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/active [delete]
func (h *Handler) DeleteActive(w http.ResponseWriter, r *http.Request) {
	approved := r.URL.Query().Get("confirm") == "true"
	var prompt string
	deleted, err := h.ctrl.DeleteActive(session.ConfirmFunc(func(p string) bool {
		prompt = p
		return approved
	}))
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted, Prompt: prompt})
}

// SetQuery handles POST /api/session/query.
//
//	@Summary		Set the search query
//	@Tags			session
//	@Accept			json
//	@Param			body	body	QueryRequest	true	"Query"
//	@Success		202		"Scheduled"
//	@Success		204		"Applied"
//	@Security		BearerAuth
//	@Router			/session/query [post]
func (h *Handler) SetQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Immediate {
		h.ctrl.Search(req.Query)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.ctrl.SetQuery(req.Query)
	w.WriteHeader(http.StatusAccepted)
}

// Format handles POST /api/session/format.
//
//	@Summary		Apply a formatting command or shortcut to the draft
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FormatRequest	true	"Command"
//	@Success		200		{object}	FormatResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/format [post]
func (h *Handler) Format(w http.ResponseWriter, r *http.Request) {
	var req FormatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	applied := true
	var err error
	switch {
	case req.Shortcut != "":
		applied, err = h.ctrl.Shortcut(req.Shortcut)
	case req.Command != "":
		err = h.ctrl.ApplyFormat(req.Command, req.Value)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("command or shortcut is required"))
		return
	}
	if err != nil {
		writeError(w, "format", err)
		return
	}
	writeJSON(w, http.StatusOK, FormatResponse{Applied: applied, States: h.ctrl.FormatStates()})
}

// ExportActive handles GET /api/session/export.
//
//	@Summary		Download the open note
//	@Tags			session
//	@Produce		plain
//	@Param			format	query	string	false	"Export format"	Enums(txt, md)
//	@Success		200
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/export [get]
func (h *Handler) ExportActive(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if !validFormat(format) {
		writeJSON(w, http.StatusBadRequest, errorBody("format must be txt or md"))
		return
	}
	exp, err := h.ctrl.ExportActive(format)
	if err != nil {
		writeError(w, "export active note", err)
		return
	}
	writeDownload(w, exp)
}

// GetPrefs handles GET /api/prefs.
//
//	@Summary		Read UI preferences
//	@Tags			prefs
//	@Produce		json
//	@Success		200	{object}	prefs.Prefs
//	@Security		BearerAuth
//	@Router			/prefs [get]
func (h *Handler) GetPrefs(w http.ResponseWriter, _ *http.Request) {
	p, err := h.prefs.Load()
	if err != nil {
		writeError(w, "load prefs", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePrefs handles PUT /api/prefs. The sidebar width is clamped.
//
//	@Summary		Update UI preferences
//	@Tags			prefs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PrefsRequest	true	"Preferences"
//	@Success		200		{object}	prefs.Prefs
//	@Security		BearerAuth
//	@Router			/prefs [put]
func (h *Handler) UpdatePrefs(w http.ResponseWriter, r *http.Request) {
	var req PrefsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DarkMode != nil {
		if err := h.prefs.SetDarkMode(*req.DarkMode); err != nil {
			writeError(w, "save prefs", err)
			return
		}
	}
	if req.SidebarWidth != nil {
		if _, err := h.prefs.SetSidebarWidth(*req.SidebarWidth); err != nil {
			writeError(w, "save prefs", err)
			return
		}
	}
	h.onPrefsChange()
	h.GetPrefs(w, r)
}

// ToggleTheme handles POST /api/prefs/theme/toggle.
//
//	@Summary		Flip between dark and light theme
//	@Tags			prefs
//	@Produce		json
//	@Success		200	{object}	prefs.Prefs
//	@Security		BearerAuth
//	@Router			/prefs/theme/toggle [post]
func (h *Handler) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	if _, err := h.prefs.ToggleDarkMode(); err != nil {
		writeError(w, "toggle theme", err)
		return
	}
	h.onPrefsChange()
	h.GetPrefs(w, r)
}

func validFormat(f string) bool {
	switch f {
	case "", notestore.FormatText, notestore.FormatMarkdown:
		return true
	}
	return false
}
