package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/state", h.GetState)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Post("/notes/{id}/select", h.SelectNote)
	r.Get("/notes/{id}/export", h.ExportNote)

	// Editing session.
	r.Route("/session", func(r chi.Router) {
		r.Put("/draft", h.UpdateDraft)
		r.Post("/paste", h.Paste)
		r.Post("/flush", h.Flush)
		r.Post("/reset", h.Reset)
		r.Delete("/active", h.DeleteActive)
		r.Post("/query", h.SetQuery)
		r.Post("/format", h.Format)
		r.Get("/export", h.ExportActive)
	})

	// Import / export of the whole collection.
	r.Get("/export", h.ExportAll)
	r.Post("/import", h.Import)

	// Preferences.
	r.Get("/prefs", h.GetPrefs)
	r.Put("/prefs", h.UpdatePrefs)
	r.Post("/prefs/theme/toggle", h.ToggleTheme)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
