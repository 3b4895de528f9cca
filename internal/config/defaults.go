package config

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAddr         = ":8080"
	defaultBuildTimeout = "30m"
	defaultFetchTimeout = "10m"
	defaultGracePeriod  = "10s"
	defaultHistorySize  = 20
	defaultScanDepth    = 4
	defaultNATSSubject  = "projectbuilder.builds"
	defaultServiceName  = "projectbuilder"
)

// applyDefaults fills zero values. It never overrides values the user set.
func applyDefaults(cfg *Config) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Server.ReadTimeout == "" {
		cfg.Server.ReadTimeout = "30s"
	}

	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = "./projectbuilder-data"
	}

	b := &cfg.Build
	if b.Timeout == "" {
		b.Timeout = defaultBuildTimeout
	}
	if b.FetchTimeout == "" {
		b.FetchTimeout = defaultFetchTimeout
	}
	if b.GracePeriod == "" {
		b.GracePeriod = defaultGracePeriod
	}
	if b.HistorySize <= 0 {
		b.HistorySize = defaultHistorySize
	}
	if b.MaxScanDepth <= 0 {
		b.MaxScanDepth = defaultScanDepth
	}
	if b.RetryBackoff == "" {
		b.RetryBackoff = RetryBackoffLinear
	} else {
		b.RetryBackoff = NormalizeRetryBackoff(string(b.RetryBackoff))
	}
	if b.RetryInitialDelay == "" {
		b.RetryInitialDelay = "1s"
	}
	if b.RetryMaxDelay == "" {
		b.RetryMaxDelay = "10s"
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverSQLite
	}
	cfg.Store.Driver = StoreDriver(strings.ToLower(string(cfg.Store.Driver)))
	if cfg.Store.DSN == "" && cfg.Store.Driver == StoreDriverSQLite {
		cfg.Store.DSN = filepath.Join(cfg.Workspace.Root, "projects.db")
	}

	if cfg.Events.Path == "" {
		cfg.Events.Path = filepath.Join(cfg.Workspace.Root, "events.db")
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = defaultNATSSubject
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
		cfg.Metrics.Enabled = true
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = defaultServiceName
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	// A synchronous build request must be allowed to outlive the build itself.
	if cfg.Server.WriteTimeout == "" {
		timeout, err := time.ParseDuration(b.Timeout)
		if err == nil {
			fetch, _ := time.ParseDuration(b.FetchTimeout)
			grace, _ := time.ParseDuration(b.GracePeriod)
			cfg.Server.WriteTimeout = (fetch + timeout + grace + time.Minute).String()
		}
	}
	return nil
}

// TimeoutDuration returns the per-build timeout.
func (b BuildConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(b.Timeout, 30*time.Minute)
}

// FetchTimeoutDuration returns the bound on cloning or updating a working copy.
func (b BuildConfig) FetchTimeoutDuration() time.Duration {
	return parseDurationOr(b.FetchTimeout, 10*time.Minute)
}

// GraceDuration returns how long a cancelled build tool may take to exit.
func (b BuildConfig) GraceDuration() time.Duration {
	return parseDurationOr(b.GracePeriod, 10*time.Second)
}

// ReadTimeoutDuration returns the HTTP read timeout.
func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return parseDurationOr(s.ReadTimeout, 30*time.Second)
}

// WriteTimeoutDuration returns the HTTP write timeout; zero disables it.
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return parseDurationOr(s.WriteTimeout, 0)
}

// RebuildIntervalDuration returns the periodic rebuild interval; zero disables scheduling.
func (s ScheduleConfig) RebuildIntervalDuration() time.Duration {
	return parseDurationOr(s.RebuildInterval, 0)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
