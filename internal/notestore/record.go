package notestore

import (
	"bytes"
	"encoding/json"
	"time"
)

// record is a note-like object whose fields are decoded lazily so that a
// field of the wrong type never fails the whole record.
type record struct {
	ID        json.RawMessage `json:"id"`
	Title     json.RawMessage `json:"title"`
	Content   json.RawMessage `json:"content"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (r record) id() string {
	s, _ := rawString(r.ID)
	return s
}

func (r record) title() string {
	s, _ := rawString(r.Title)
	return s
}

func (r record) content() string {
	s, _ := rawString(r.Content)
	return s
}

// idValid reports whether the id is absent, null or a string.
func (r record) idValid() bool {
	if isAbsent(r.ID) {
		return true
	}
	_, ok := rawString(r.ID)
	return ok
}

// timestamp accepts an ISO-8601 string or a number of milliseconds since
// the Unix epoch.
func (r record) timestamp() (time.Time, bool) {
	if isAbsent(r.Timestamp) {
		return time.Time{}, false
	}
	if s, ok := rawString(r.Timestamp); ok {
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	}
	var ms float64
	if err := json.Unmarshal(r.Timestamp, &ms); err == nil && ms != 0 {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
