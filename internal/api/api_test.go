package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/quire/internal/kv"
	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/prefs"
	"github.com/starford/quire/internal/session"
	"github.com/starford/quire/internal/testutil"
)

type testEnvResult struct {
	store  *notestore.Store
	ctrl   *session.Controller
	sched  *testutil.Scheduler
	notes  *testutil.Notifications
	router http.Handler
}

// testEnv wires an in-memory store, a session on a fake scheduler and the
// router. An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) *testEnvResult {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) *testEnvResult {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	backend := kv.NewMemory()
	sched := &testutil.Scheduler{}
	notes := &testutil.Notifications{}

	store := notestore.New(backend, notestore.WithLogger(logger))
	ctrl := session.New(store,
		session.WithScheduler(sched),
		session.WithLogger(logger),
		session.WithNotifier(notes),
	)
	p := prefs.New(backend, prefs.DefaultMinWidth, prefs.DefaultMaxWidth, prefs.DefaultWidth)

	h := NewHandler(ctrl, store, p, nil)
	router := NewRouter(h, authToken != "", authToken, sseHandler)
	return &testEnvResult{store: store, ctrl: ctrl, sched: sched, notes: notes, router: router}
}

func (e *testEnvResult) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnvResult) state(t *testing.T) session.View {
	t.Helper()
	w := e.do(t, http.MethodGet, "/state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("state status = %d", w.Code)
	}
	var v session.View
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func createNote(t *testing.T, e *testEnvResult, title, body string) Note {
	t.Helper()
	w := e.do(t, http.MethodPost, "/notes", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var n Note
	_ = json.Unmarshal(w.Body.Bytes(), &n)
	w = e.do(t, http.MethodPut, "/session/draft", map[string]string{"title": title, "body": body})
	if w.Code != http.StatusNoContent {
		t.Fatalf("draft status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPost, "/session/flush", nil); w.Code != http.StatusNoContent {
		t.Fatalf("flush status = %d", w.Code)
	}
	return n
}

func TestCreateAndGetNote(t *testing.T) {
	e := testEnv(t, "")
	n := createNote(t, e, "Hello", "<p>World</p>")

	w := e.do(t, http.MethodGet, "/notes/"+n.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Hello" || got.Content != "<p>World</p>" {
		t.Errorf("note = %+v", got)
	}

	v := e.state(t)
	if v.Mode != session.ModeEditor || v.ActiveID != n.ID {
		t.Errorf("mode = %s active = %q", v.Mode, v.ActiveID)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/notes/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDraftWithoutActiveNote(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodPut, "/session/draft", map[string]string{"title": "x"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestDraftAutosave(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodPost, "/notes", nil)
	var n Note
	_ = json.Unmarshal(w.Body.Bytes(), &n)

	e.do(t, http.MethodPut, "/session/draft", map[string]string{"body": "later"})
	if got, _ := e.store.Get(n.ID); got.Content != "" {
		t.Fatal("draft committed before the quiet period")
	}
	e.sched.Advance(session.DefaultAutosaveDelay)
	if got, _ := e.store.Get(n.ID); got.Content != "later" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestSelectNote(t *testing.T) {
	e := testEnv(t, "")
	a := createNote(t, e, "A", "a")
	createNote(t, e, "B", "b")

	if w := e.do(t, http.MethodPost, "/notes/"+a.ID+"/select", nil); w.Code != http.StatusNoContent {
		t.Fatalf("select status = %d", w.Code)
	}
	if v := e.state(t); v.ActiveID != a.ID || v.Draft.Title != "A" {
		t.Errorf("active = %q title = %q", v.ActiveID, v.Draft.Title)
	}
	if w := e.do(t, http.MethodPost, "/notes/zzz/select", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing select = %d", w.Code)
	}
}

func TestListNotesRanked(t *testing.T) {
	e := testEnv(t, "")
	createNote(t, e, "Shopping", "milk eggs")
	createNote(t, e, "Recipe", "bake eggs and flour")

	w := e.do(t, http.MethodGet, "/notes?q=eggs+-Shopping", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Notes) != 1 || resp.Notes[0].Title != "Recipe" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Notes[0].Score == 0 {
		t.Error("score not reported")
	}
}

func TestSearchQuery(t *testing.T) {
	e := testEnv(t, "")
	createNote(t, e, "Shopping", "milk eggs")
	createNote(t, e, "Recipe", "bake eggs and flour")

	w := e.do(t, http.MethodPost, "/session/query", QueryRequest{Query: "+flour bake"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	e.sched.Advance(session.DefaultSearchDelay)

	v := e.state(t)
	if v.Mode != session.ModeSearch || len(v.Results) != 1 || v.CountLabel != "Found 1 of 2" {
		t.Errorf("mode %s results %d label %q", v.Mode, len(v.Results), v.CountLabel)
	}
	if !strings.Contains(v.Results[0].Snippet, "highlight-match") {
		t.Errorf("snippet = %q", v.Results[0].Snippet)
	}
}

func TestDeleteActive_RequiresConfirm(t *testing.T) {
	e := testEnv(t, "")
	createNote(t, e, "Groceries", "")

	w := e.do(t, http.MethodDelete, "/session/active", nil)
	var resp DeleteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Deleted {
		t.Fatalf("unconfirmed delete = %d %+v", w.Code, resp)
	}
	if !strings.Contains(resp.Prompt, `"Groceries"`) {
		t.Errorf("prompt = %q", resp.Prompt)
	}

	w = e.do(t, http.MethodDelete, "/session/active?confirm=true", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Deleted || e.store.Len() != 0 {
		t.Errorf("confirmed delete = %+v, len %d", resp, e.store.Len())
	}
}

func TestFormatEndpoint(t *testing.T) {
	e := testEnv(t, "")
	createNote(t, e, "T", "word")

	w := e.do(t, http.MethodPost, "/session/format", FormatRequest{Shortcut: "b"})
	var resp FormatResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || !resp.Applied || !resp.States[session.CmdBold] {
		t.Errorf("format = %d %+v", w.Code, resp)
	}

	w = e.do(t, http.MethodPost, "/session/format", FormatRequest{Command: "nope"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown command = %d", w.Code)
	}
}

func TestExportAll(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/export", nil); w.Code != http.StatusNotFound {
		t.Errorf("empty export = %d, want 404", w.Code)
	}

	createNote(t, e, "A", "a")
	w := e.do(t, http.MethodGet, "/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename=notes_export_") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var notes []Note
	if err := json.Unmarshal(w.Body.Bytes(), &notes); err != nil || len(notes) != 1 {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestExportNote(t *testing.T) {
	e := testEnv(t, "")
	n := createNote(t, e, "My/Note", "<p>text</p>")

	w := e.do(t, http.MethodGet, "/notes/"+n.ID+"/export?format=txt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != "Title: My/Note\n\n---\n\ntext" {
		t.Errorf("body = %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "MyNote.txt") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if w := e.do(t, http.MethodGet, "/notes/"+n.ID+"/export?format=pdf", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad format = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/session/export?format=md", nil); w.Code != http.StatusOK {
		t.Errorf("export active = %d", w.Code)
	}
}

func TestImportRawBody(t *testing.T) {
	e := testEnv(t, "")
	doc := `[{"id":"i1","title":"Imported","content":"x","timestamp":"2024-01-01T00:00:00Z"},{"title":"bad"}]`
	req := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ImportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Added != 1 || resp.Rejected != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Message != "1 new note(s) imported. 1 invalid items ignored." {
		t.Errorf("message = %q", resp.Message)
	}
}

func uploadFile(t *testing.T, router http.Handler, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestImportMultipart(t *testing.T) {
	e := testEnv(t, "")
	w := uploadFile(t, e.router, "file", "notes.json", []byte(`{"notes":[{"content":"c","timestamp":"2024-01-01"}]}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if e.store.Len() != 1 {
		t.Errorf("len = %d", e.store.Len())
	}
}

func TestImportMultipart_MissingFileField(t *testing.T) {
	e := testEnv(t, "")
	w := uploadFile(t, e.router, "other", "notes.json", []byte(`[]`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestImportInvalid(t *testing.T) {
	e := testEnv(t, "")
	for _, doc := range []string{`{"foo":1}`, `[{"title":"x"}]`} {
		req := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader(doc))
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", doc, w.Code)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestImportReadFailureNotifies(t *testing.T) {
	e := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/import", failingReader{})
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	last := e.notes.Last(t)
	if !last.IsError || last.Message != "Error reading file." {
		t.Errorf("notification = %+v", last)
	}
	if e.store.Len() != 0 {
		t.Error("store changed after failed read")
	}
}

func TestStateETag(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodGet, "/state", nil)
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", w.Code)
	}

	createNote(t, e, "changed", "")
	req = httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status after change = %d, want 200", w.Code)
	}
}

func TestPrefs(t *testing.T) {
	e := testEnv(t, "")
	var p prefs.Prefs
	w := e.do(t, http.MethodGet, "/prefs", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if !p.DarkMode || p.SidebarWidth != prefs.DefaultWidth {
		t.Errorf("defaults = %+v", p)
	}

	width := 10
	w = e.do(t, http.MethodPut, "/prefs", PrefsRequest{SidebarWidth: &width})
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.SidebarWidth != prefs.DefaultMinWidth {
		t.Errorf("width = %d, want clamped %d", p.SidebarWidth, prefs.DefaultMinWidth)
	}

	w = e.do(t, http.MethodPost, "/prefs/theme/toggle", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.DarkMode {
		t.Error("theme not toggled")
	}
}

// Auth middleware tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret")
	if w := e.do(t, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryTokenOnlyForGET(t *testing.T) {
	e := testEnv(t, "secret")
	if w := e.do(t, http.MethodGet, "/notes?access_token=secret", nil); w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/notes?access_token=secret", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	// Writes headers and blocks until the client goes away.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, "secret", sseStub())
	if w := e.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, "tok", sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
