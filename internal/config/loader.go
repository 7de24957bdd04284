package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "langbridge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "LANGBRIDGE_PORT")
	setString(&cfg.Server.CORSOrigin, "LANGBRIDGE_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "LANGBRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "LANGBRIDGE_LOG_SERVICE")
	setString(&cfg.LSP.EndpointURL, "LANGBRIDGE_LSP_URL")
	setString(&cfg.LSP.RootURI, "LANGBRIDGE_ROOT_URI")
	setStringSlice(&cfg.LSP.Languages, "LANGBRIDGE_LANGUAGES")
	setDuration(&cfg.LSP.ConnectTimeout, "LANGBRIDGE_CONNECT_TIMEOUT")
	setDuration(&cfg.LSP.RequestTimeout, "LANGBRIDGE_REQUEST_TIMEOUT")
	setDuration(&cfg.LSP.ShutdownTimeout, "LANGBRIDGE_SHUTDOWN_TIMEOUT")
	setInt(&cfg.LSP.MaxDiagnostics, "LANGBRIDGE_MAX_DIAGNOSTICS")
	setDuration(&cfg.LSP.Backoff.InitialDelay, "LANGBRIDGE_BACKOFF_INITIAL")
	setFloat64(&cfg.LSP.Backoff.Multiplier, "LANGBRIDGE_BACKOFF_MULTIPLIER")
	setInt(&cfg.LSP.Backoff.MaxAttempts, "LANGBRIDGE_BACKOFF_MAX_ATTEMPTS")
	setBool(&cfg.LSP.Cache.Enabled, "LANGBRIDGE_CACHE_ENABLED")
	setInt64(&cfg.LSP.Cache.MaxEntries, "LANGBRIDGE_CACHE_MAX_ENTRIES")
	setDuration(&cfg.LSP.Cache.TTL, "LANGBRIDGE_CACHE_TTL")
}

// validate rejects configurations the engine cannot run with.
func validate(cfg *Config) error {
	if cfg.LSP.EndpointURL == "" {
		return errors.New("lsp.endpoint_url must not be empty")
	}
	if len(cfg.LSP.Languages) == 0 {
		return errors.New("lsp.languages must list at least one language")
	}
	if cfg.LSP.RequestTimeout <= 0 {
		return errors.New("lsp.request_timeout must be positive")
	}
	if cfg.LSP.Backoff.Multiplier < 1 {
		return fmt.Errorf("lsp.backoff.multiplier must be >= 1, got %v", cfg.LSP.Backoff.Multiplier)
	}
	if cfg.LSP.Backoff.MaxAttempts < 0 {
		return errors.New("lsp.backoff.max_attempts must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStringSlice parses a comma-separated env value into a slice.
func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
