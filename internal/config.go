package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sidekick/internal/clip"
)

// Auth modes for the bridge API.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Clip note locations.
const (
	ClipLocationJournal    = "journal"
	ClipLocationCustomPage = "customPage"
)

// Theme preferences. The core only carries the value; rendering it is the UI
// layer's business.
const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

// Config represents the application configuration. The broker and client
// only read it; the file watcher reacts to changes.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Logseq LogseqConfig      `yaml:"logseq"`
	Clip   ClipConfig        `yaml:"clip"`
	Auth   AuthConfig        `yaml:"auth"`
	Theme  string            `yaml:"theme"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Logseq.Validate(); err != nil {
		return err
	}
	if err := c.Clip.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.Theme == "" {
		c.Theme = ThemeSystem
	}
	return validation.Validate(c.Theme, validation.In(ThemeSystem, ThemeLight, ThemeDark))
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

// HTTPConfig holds the bridge HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the bridge HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// LogseqConfig identifies the remote note-store server and the graph every
// request is scoped to. HostName, Port and GraphName together form the graph
// identity; changing any of them invalidates the client's cache.
type LogseqConfig struct {
	HostName  string `yaml:"host_name"`
	Port      int    `yaml:"port"`
	GraphName string `yaml:"graph_name"`
	AuthToken string `yaml:"auth_token"`
}

// Validate validates the note-store configuration.
func (c *LogseqConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HostName, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ClipConfig holds the note-capture settings.
type ClipConfig struct {
	Location    string `yaml:"location"`
	CustomPage  string `yaml:"custom_page"`
	Template    string `yaml:"template"`
	FloatButton bool   `yaml:"float_button"`
}

// Validate validates the clip configuration.
func (c *ClipConfig) Validate() error {
	if c.Location == "" {
		c.Location = ClipLocationJournal
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Location, validation.Required, validation.In(ClipLocationJournal, ClipLocationCustomPage)),
	); err != nil {
		return err
	}
	if c.Location == ClipLocationCustomPage && c.CustomPage == "" {
		return fmt.Errorf("clip: location is %q but custom_page is empty", ClipLocationCustomPage)
	}
	return nil
}

// AuthConfig holds bridge API authentication configuration.
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
	// Normalise empty mode to "disabled" for backward compatibility.
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
		Logseq: LogseqConfig{
			HostName: "localhost",
			Port:     8765,
		},
		Clip: ClipConfig{
			Location: ClipLocationJournal,
			Template: clip.DefaultTemplate,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Theme: ThemeSystem,
	}
}
