// Package config provides hierarchical configuration loading for langbridge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the langbridge engine.
type Config struct {
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
	LSP     LSP     `yaml:"lsp"`
}

// Server holds the HTTP status surface configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// LSP holds language server connection configuration.
type LSP struct {
	// EndpointURL is the base WebSocket URL of the language server gateway,
	// e.g. "ws://localhost:9100/lsp". The language and workspace root are
	// appended as query parameters per connection.
	EndpointURL string `yaml:"endpoint_url"`

	// RootURI is the workspace root sent during the initialize handshake
	// and as a connection parameter.
	RootURI string `yaml:"root_uri"`

	// Languages lists the language identifiers to register sessions for at
	// startup, e.g. ["go", "python"].
	Languages []string `yaml:"languages"`

	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxDiagnostics caps how many diagnostics per document are kept and
	// forwarded to the editor. 0 means unlimited.
	MaxDiagnostics int `yaml:"max_diagnostics"`

	Backoff Backoff `yaml:"backoff"`
	Cache   Cache   `yaml:"cache"`
}

// Backoff holds automatic reconnection parameters. After MaxAttempts
// consecutive failures no further automatic attempts are made; only a manual
// reconnect resumes.
type Backoff struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// Cache holds the feature-result cache configuration. Hover and completion
// answers are cached keyed by document version, so edits self-invalidate.
type Cache struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int64         `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8091",
			CORSOrigin: "*",
		},
		Logging: Logging{
			Level:   "info",
			Service: "langbridge",
		},
		LSP: LSP{
			EndpointURL:     "ws://localhost:9100/lsp",
			Languages:       []string{"go"},
			ConnectTimeout:  10 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxDiagnostics:  200,
			Backoff: Backoff{
				InitialDelay: time.Second,
				Multiplier:   2.0,
				MaxAttempts:  3,
			},
			Cache: Cache{
				Enabled:    true,
				MaxEntries: 1024,
				TTL:        5 * time.Second,
			},
		},
	}
}
