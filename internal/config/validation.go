package config

import (
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	return validator.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateServer(); err != nil {
		return err
	}
	if err := cv.validateWorkspace(); err != nil {
		return err
	}
	if err := cv.validateBuild(); err != nil {
		return err
	}
	if err := cv.validateStore(); err != nil {
		return err
	}
	if err := cv.validateSchedule(); err != nil {
		return err
	}
	return cv.validateLogging()
}

func (cv *configurationValidator) validateServer() error {
	s := cv.config.Server
	if strings.TrimSpace(s.Addr) == "" {
		return ferrors.ConfigError("server.addr is required").Build()
	}
	if err := validateDuration("server.read_timeout", s.ReadTimeout, true); err != nil {
		return err
	}
	return validateDuration("server.write_timeout", s.WriteTimeout, true)
}

func (cv *configurationValidator) validateWorkspace() error {
	if strings.TrimSpace(cv.config.Workspace.Root) == "" {
		return ferrors.ConfigError("workspace.root is required").Build()
	}
	return nil
}

// ValidateBuild validates only the build section; used by hot reload.
func ValidateBuild(b BuildConfig) error {
	if err := validateDuration("build.timeout", b.Timeout, false); err != nil {
		return err
	}
	if err := validateDuration("build.fetch_timeout", b.FetchTimeout, false); err != nil {
		return err
	}
	if err := validateDuration("build.grace_period", b.GracePeriod, true); err != nil {
		return err
	}
	if err := validateDuration("build.retry_initial_delay", b.RetryInitialDelay, true); err != nil {
		return err
	}
	if err := validateDuration("build.retry_max_delay", b.RetryMaxDelay, true); err != nil {
		return err
	}
	if b.RetryBackoff == "" {
		return ferrors.ConfigError("build.retry_backoff must be fixed, linear or exponential").Build()
	}
	if b.MaxRetries < 0 {
		return ferrors.ConfigError("build.max_retries cannot be negative").
			WithContext("value", b.MaxRetries).Build()
	}
	if b.ShallowDepth < 0 {
		return ferrors.ConfigError("build.shallow_depth cannot be negative").
			WithContext("value", b.ShallowDepth).Build()
	}
	return nil
}

func (cv *configurationValidator) validateBuild() error {
	return ValidateBuild(cv.config.Build)
}

func (cv *configurationValidator) validateStore() error {
	st := cv.config.Store
	switch st.Driver {
	case StoreDriverSQLite, StoreDriverPostgres:
	default:
		return ferrors.ConfigError("store.driver must be sqlite or postgres").
			WithContext("driver", string(st.Driver)).Build()
	}
	if strings.TrimSpace(st.DSN) == "" {
		return ferrors.ConfigError("store.dsn is required").
			WithContext("driver", string(st.Driver)).Build()
	}
	return nil
}

func (cv *configurationValidator) validateSchedule() error {
	return validateDuration("schedule.rebuild_interval", cv.config.Schedule.RebuildInterval, true)
}

func (cv *configurationValidator) validateLogging() error {
	switch strings.ToLower(cv.config.Logging.Format) {
	case "text", "json":
	default:
		return ferrors.ConfigError("logging.format must be text or json").
			WithContext("format", cv.config.Logging.Format).Build()
	}
	switch strings.ToLower(cv.config.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return ferrors.ConfigError("logging.level is invalid").
			WithContext("level", cv.config.Logging.Level).Build()
	}
	return nil
}

func validateDuration(field, raw string, allowEmpty bool) error {
	if raw == "" {
		if allowEmpty {
			return nil
		}
		return ferrors.ConfigError(field + " is required").Build()
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid duration").
			WithContext("field", field).WithContext("value", raw).Build()
	}
	if d < 0 {
		return ferrors.ConfigError("duration cannot be negative").
			WithContext("field", field).WithContext("value", raw).Build()
	}
	return nil
}
