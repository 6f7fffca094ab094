// Package config handles configuration loading, validation, and management
// for activityd.
package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateActivityLog(&c.Log)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.KeyTimeoutMs < 100 {
		errs = append(errs, ValidationError{
			Field:   "engine.key_timeout_ms",
			Message: "key timeout must be at least 100ms",
		})
	}
	if e.KeyTimeoutMs > 60000 {
		errs = append(errs, ValidationError{
			Field:   "engine.key_timeout_ms",
			Message: "key timeout cannot exceed 60000ms (1 minute)",
		})
	}
	if e.PumpIntervalMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.pump_interval_ms",
			Message: "pump interval must be at least 1ms",
		})
	}
	if e.PumpIntervalMs > 1000 {
		errs = append(errs, ValidationError{
			Field:   "engine.pump_interval_ms",
			Message: "pump interval cannot exceed 1000ms",
		})
	}
	if e.CleanupIntervalSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.cleanup_interval_sec",
			Message: "cleanup interval must be at least 1 second",
		})
	}

	return errs
}

func validateActivityLog(l *ActivityLogConfig) ValidationErrors {
	var errs ValidationErrors

	if l.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "log.path",
			Message: "activity log path cannot be empty",
		})
	}
	if strings.ContainsRune(l.Path, 0) {
		errs = append(errs, ValidationError{
			Field:   "log.path",
			Message: "activity log path contains a NUL byte",
		})
	}
	if l.FlushIntervalSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "log.flush_interval_sec",
			Message: "flush interval cannot be negative",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q (want debug, info, warn, or error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q (want text or json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "file":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output %q (want stdout, stderr, or file)", l.Output),
		})
	}

	if l.Output == "file" && l.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "file output requires a file path",
		})
	}

	return errs
}
