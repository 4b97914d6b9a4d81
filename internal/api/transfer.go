package api

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/starford/quire/internal/notestore"
)

const maxImportBytes = 50 << 20 // 50 MB

// ExportAll handles GET /api/export.
//
//	@Summary		Download every note as a JSON array
//	@Tags			transfer
//	@Produce		json
//	@Success		200	{array}		Note
//	@Failure		404	{object}	errResponse	"No notes to export"
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) ExportAll(w http.ResponseWriter, _ *http.Request) {
	exp, err := h.ctrl.ExportAll()
	if err != nil {
		writeError(w, "export notes", err)
		return
	}
	writeDownload(w, exp)
}

// Import handles POST /api/import. The document is either the raw request
// body or the "file" field of a multipart form.
//
//	@Summary		Merge an exported notes file into the collection
//	@Tags			transfer
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			file	formData	file	false	"Notes file"
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	name, body, ok := importSource(w, r)
	if !ok {
		return
	}
	defer body.Close()

	res, err := h.ctrl.ImportReader(name, body)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{ImportResult: res, Message: res.Message()})
}

// importSource returns the import document stream: the raw body, or the
// "file" field of a multipart form.
func importSource(w http.ResponseWriter, r *http.Request) (string, io.ReadCloser, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "request body", r.Body, true
	}

	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return "", nil, false
	}
	return header.Filename, file, true
}

func writeDownload(w http.ResponseWriter, exp notestore.Export) {
	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": exp.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(exp.Data)
}
