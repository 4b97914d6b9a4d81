// Package prefs stores UI preferences next to the notes.
package prefs

import (
	"fmt"
	"strconv"

	"github.com/starford/quire/internal/kv"
)

// Sidebar width bounds in pixels.
const (
	DefaultMinWidth = 220
	DefaultMaxWidth = 600
	DefaultWidth    = 300
)

// Prefs is the preferences view returned to clients.
type Prefs struct {
	DarkMode     bool `json:"dark_mode"`
	SidebarWidth int  `json:"sidebar_width"`
}

// Store reads and writes preferences through a kv.Store.
type Store struct {
	kv           kv.Store
	minWidth     int
	maxWidth     int
	defaultWidth int
}

// New returns a Store clamping the sidebar width to [minWidth, maxWidth].
// defaultWidth is used when nothing valid is stored.
func New(backend kv.Store, minWidth, maxWidth, defaultWidth int) *Store {
	return &Store{kv: backend, minWidth: minWidth, maxWidth: maxWidth, defaultWidth: defaultWidth}
}

// DarkMode reports whether the dark theme is on. Only a stored "false"
// turns it off.
func (s *Store) DarkMode() (bool, error) {
	v, ok, err := s.kv.Get(kv.KeyDarkMode)
	if err != nil {
		return true, fmt.Errorf("prefs: dark mode: %w", err)
	}
	return !ok || v != "false", nil
}

// SetDarkMode persists the theme choice.
func (s *Store) SetDarkMode(on bool) error {
	if err := s.kv.Set(kv.KeyDarkMode, strconv.FormatBool(on)); err != nil {
		return fmt.Errorf("prefs: set dark mode: %w", err)
	}
	return nil
}

// ToggleDarkMode flips the theme and returns the new value.
func (s *Store) ToggleDarkMode() (bool, error) {
	on, err := s.DarkMode()
	if err != nil {
		return on, err
	}
	return !on, s.SetDarkMode(!on)
}

// SidebarWidth returns the stored width clamped to the bounds. Missing,
// non-numeric and non-positive values yield the default width.
func (s *Store) SidebarWidth() (int, error) {
	v, ok, err := s.kv.Get(kv.KeySidebarWidth)
	if err != nil {
		return s.defaultWidth, fmt.Errorf("prefs: sidebar width: %w", err)
	}
	if !ok {
		return s.defaultWidth, nil
	}
	w, err := strconv.Atoi(v)
	if err != nil || w <= 0 {
		return s.defaultWidth, nil
	}
	return s.clamp(w), nil
}

// SetSidebarWidth clamps w and persists it. It returns the stored value.
func (s *Store) SetSidebarWidth(w int) (int, error) {
	w = s.clamp(w)
	if err := s.kv.Set(kv.KeySidebarWidth, strconv.Itoa(w)); err != nil {
		return w, fmt.Errorf("prefs: set sidebar width: %w", err)
	}
	return w, nil
}

// Load returns all preferences.
func (s *Store) Load() (Prefs, error) {
	dark, err := s.DarkMode()
	if err != nil {
		return Prefs{}, err
	}
	w, err := s.SidebarWidth()
	if err != nil {
		return Prefs{}, err
	}
	return Prefs{DarkMode: dark, SidebarWidth: w}, nil
}

func (s *Store) clamp(w int) int {
	return max(s.minWidth, min(w, s.maxWidth))
}
