package internal

import "github.com/starford/sidekick/internal/broker"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
	badge      broker.BadgePainter
	control    broker.Controller
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath enables live reload: the file at path is watched and
// configuration changes are forwarded to the broker.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}

// WithBadgePainter overrides the default log-backed badge painter.
func WithBadgePainter(b broker.BadgePainter) Option {
	return func(a *application) {
		a.badge = b
	}
}

// WithController overrides the default log-backed host controller.
func WithController(c broker.Controller) Option {
	return func(a *application) {
		a.control = c
	}
}
