package notestore

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/quire/internal/apperr"
)

func TestImportMerge(t *testing.T) {
	e := newEnv(t)
	a, _ := e.store.Create()

	doc := `[
		{"id":"` + a.ID + `","title":"dup","content":"x","timestamp":"2024-01-01T00:00:00Z"},
		{"id":"imp1","title":"One","content":"first","timestamp":"2024-02-01T00:00:00Z"},
		{"title":"No id","content":"second","timestamp":1700000000000},
		{"id":"bad","title":"No content","timestamp":"2024-01-01T00:00:00Z"},
		{"id":7,"content":"numeric id","timestamp":"2024-01-01T00:00:00Z"},
		"not an object"
	]`
	res, err := e.store.ImportMerge([]byte(doc))
	if err != nil {
		t.Fatalf("ImportMerge: %v", err)
	}
	want := ImportResult{Added: 2, SkippedDuplicate: 1, Rejected: 3}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if e.store.Len() != 3 {
		t.Errorf("len = %d, want 3", e.store.Len())
	}
	if got, _ := e.store.Get(a.ID); got.Title != "" {
		t.Error("existing note overwritten by import")
	}
	// The existing note is the newest and stays in front.
	if got := order(e.store); got[0] != a.ID || got[1] != "imp1" {
		t.Errorf("order = %v", got)
	}
	if res.Message() != "2 new note(s) imported. 1 existing notes skipped. 3 invalid items ignored." {
		t.Errorf("message = %q", res.Message())
	}
}

func TestImportMerge_WrappedObject(t *testing.T) {
	e := newEnv(t)
	res, err := e.store.ImportMerge([]byte(`{"notes":[{"id":"x","content":"c","timestamp":"2024-01-01"}]}`))
	if err != nil || res.Added != 1 {
		t.Fatalf("ImportMerge = %+v, %v", res, err)
	}
}

func TestImportMerge_SameIDTwiceInFile(t *testing.T) {
	e := newEnv(t)
	res, err := e.store.ImportMerge([]byte(`[
		{"id":"x","content":"a","timestamp":"2024-01-01T00:00:00Z"},
		{"id":"x","content":"b","timestamp":"2024-01-02T00:00:00Z"}
	]`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 || res.SkippedDuplicate != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestImportMerge_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"object without notes", `{"foo":1}`, apperr.ErrImportFormatInvalid},
		{"notes not array", `{"notes":"x"}`, apperr.ErrImportFormatInvalid},
		{"scalar", `42`, apperr.ErrImportFormatInvalid},
		{"broken json", `[{"id":`, apperr.ErrImportFormatInvalid},
		{"blank", `  `, apperr.ErrImportFormatInvalid},
		{"all invalid", `[{"title":"x"},{"content":1}]`, apperr.ErrImportNoValidRecords},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, _ = e.store.Create()
			writes := e.kv.Writes()

			_, err := e.store.ImportMerge([]byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if e.store.Len() != 1 || e.kv.Writes() != writes {
				t.Error("store modified by failed import")
			}
		})
	}
}

func TestImportMerge_EmptyArray(t *testing.T) {
	e := newEnv(t)
	res, err := e.store.ImportMerge([]byte(`[]`))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !res.Empty() || res.Message() != "Selected file contains no notes." {
		t.Errorf("result = %+v", res)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newEnv(t)
	for _, title := range []string{"a", "b", "c"} {
		src.clock.Advance(time.Minute)
		n, _ := src.store.Create()
		_, _ = src.store.Update(n.ID, title, "<p>"+title+"</p>")
	}
	exp, err := src.store.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if exp.Filename != "notes_export_2024-03-01.json" {
		t.Errorf("filename = %q", exp.Filename)
	}

	dst := newEnv(t)
	res, err := dst.store.ImportMerge(exp.Data)
	if err != nil {
		t.Fatalf("ImportMerge: %v", err)
	}
	if res.Added != 3 {
		t.Errorf("added = %d", res.Added)
	}
	want, _ := json.Marshal(src.store.Notes())
	got, _ := json.Marshal(dst.store.Notes())
	if string(want) != string(got) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestExportAll_Empty(t *testing.T) {
	e := newEnv(t)
	if _, err := e.store.ExportAll(); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestExportNote(t *testing.T) {
	e := newEnv(t)
	n, _ := e.store.Create()
	_, _ = e.store.Update(n.ID, "Shopping: list!", "<p>eggs</p><p>milk</p>")

	txt, err := e.store.ExportNote(n.ID, FormatText)
	if err != nil {
		t.Fatal(err)
	}
	if txt.Filename != "Shopping list.txt" {
		t.Errorf("filename = %q", txt.Filename)
	}
	if string(txt.Data) != "Title: Shopping: list!\n\n---\n\neggs\nmilk" {
		t.Errorf("body = %q", txt.Data)
	}

	md, err := e.store.ExportNote(n.ID, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(md.Data), "# Shopping: list!\n\n") || !strings.Contains(string(md.Data), "eggs") {
		t.Errorf("markdown = %q", md.Data)
	}

	if _, err := e.store.ExportNote(n.ID, "pdf"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := e.store.ExportNote("missing", FormatText); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestExportFilename(t *testing.T) {
	tests := map[string]string{
		"Plan / Q3":  "Plan  Q3.txt",
		"  ":         "Untitled.txt",
		"":           "Untitled.txt",
		"***":        "Untitled.txt",
		"draft_v2-a": "draft_v2-a.txt",
	}
	for title, want := range tests {
		if got := ExportFilename(title, "txt"); got != want {
			t.Errorf("ExportFilename(%q) = %q, want %q", title, got, want)
		}
	}
}
