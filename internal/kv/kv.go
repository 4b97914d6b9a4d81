// Package kv provides the flat key-value blob store the application persists
// its state into.
package kv

// Well-known keys.
const (
	KeyNotes        = "notes"
	KeyDarkMode     = "darkMode"
	KeySidebarWidth = "sidebarWidth"
)

// Store is a synchronous string key-value store.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
