package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/prefs"
	"github.com/starford/quire/internal/session"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageFS     = "fs"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	Session SessionConfig     `yaml:"session"`
	Sidebar SidebarConfig     `yaml:"sidebar"`
	Import  ImportConfig      `yaml:"import"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Sidebar.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects the key-value backend. Path is the database file for
// "sqlite" and the directory for "fs".
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StorageSQLite, StorageFS)),
		validation.Field(&c.Path, validation.Required),
	)
}

// SessionConfig holds the editor debounce intervals.
type SessionConfig struct {
	AutosaveDelay time.Duration `yaml:"autosave_delay"`
	SearchDelay   time.Duration `yaml:"search_delay"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AutosaveDelay, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.SearchDelay, validation.Required, validation.Min(time.Millisecond)),
	)
}

// SidebarConfig bounds the persisted sidebar width, in pixels.
type SidebarConfig struct {
	MinWidth     int `yaml:"min_width"`
	MaxWidth     int `yaml:"max_width"`
	DefaultWidth int `yaml:"default_width"`
}

// Validate validates the sidebar configuration.
func (c *SidebarConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinWidth, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxWidth, validation.Required, validation.Min(c.MinWidth)),
		validation.Field(&c.DefaultWidth, validation.Required, validation.Min(c.MinWidth), validation.Max(c.MaxWidth)),
	)
}

// ImportConfig holds the optional import inbox directory. An empty Inbox
// disables the watcher.
type ImportConfig struct {
	Inbox string `yaml:"inbox"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			Path:   "./quire.db",
		},
		Session: SessionConfig{
			AutosaveDelay: session.DefaultAutosaveDelay,
			SearchDelay:   session.DefaultSearchDelay,
		},
		Sidebar: SidebarConfig{
			MinWidth:     prefs.DefaultMinWidth,
			MaxWidth:     prefs.DefaultMaxWidth,
			DefaultWidth: prefs.DefaultWidth,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
