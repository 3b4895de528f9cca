// Package config loads and validates the projectbuilder configuration file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Build     BuildConfig     `yaml:"build"`
	Store     StoreConfig     `yaml:"store"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the REST listener.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout,omitempty"`
	WriteTimeout string `yaml:"write_timeout,omitempty"`
}

// WorkspaceConfig locates working copies, logs and local databases.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// BuildConfig holds build orchestration settings. It is the only section reloaded at runtime.
type BuildConfig struct {
	Timeout      string `yaml:"timeout"`
	FetchTimeout string `yaml:"fetch_timeout"`
	GracePeriod  string `yaml:"grace_period"`
	HistorySize  int    `yaml:"history_size"`
	MaxScanDepth int    `yaml:"max_scan_depth"`
	ShallowDepth int    `yaml:"shallow_depth,omitempty"`

	MaxRetries        int              `yaml:"max_retries"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay string           `yaml:"retry_initial_delay"`
	RetryMaxDelay     string           `yaml:"retry_max_delay"`
}

// StoreConfig selects the project record store.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"`
	DSN    string      `yaml:"dsn"`
}

// StoreDriver enumerates supported database drivers.
type StoreDriver string

const (
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverPostgres StoreDriver = "postgres"
)

// EventsConfig controls the build event log and downstream notifications.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// TelemetryConfig controls OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

// ScheduleConfig enables periodic rebuilds of every project.
type ScheduleConfig struct {
	RebuildInterval string `yaml:"rebuild_interval,omitempty"`
}

// LoggingConfig controls the default slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from path, expanding ${VAR} references after loading .env files.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil && !errors.Is(err, errNoEnvFile) {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load .env file").Build()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("configuration file not found").WithContext("path", path).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").WithContext("path", path).Build()
	}
	return Parse(data)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Build()
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).Build()
	}

	example := Default()
	example.Events.Enabled = true
	example.Events.NATSURL = "nats://127.0.0.1:4222"
	example.Schedule.RebuildInterval = "6h"
	example.Telemetry.Endpoint = "http://127.0.0.1:4318"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
