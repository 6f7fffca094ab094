// Package config handles configuration loading, validation, and management
// for activityd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the complete daemon configuration.
type Config struct {
	// Engine configuration for the activity classification engine.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Log configuration for the CSV activity log.
	Log ActivityLogConfig `toml:"log" json:"log" yaml:"log"`

	// Logging configuration for daemon diagnostics.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// EngineConfig tunes event classification and hook timing.
type EngineConfig struct {
	// KeyTimeoutMs is the auto-repeat deduplication window in milliseconds.
	// A key held down counts once until released or until this window
	// elapses.
	KeyTimeoutMs int `toml:"key_timeout_ms" json:"key_timeout_ms" yaml:"key_timeout_ms"`

	// PumpIntervalMs is the hook pump polling interval in milliseconds.
	PumpIntervalMs int `toml:"pump_interval_ms" json:"pump_interval_ms" yaml:"pump_interval_ms"`

	// CleanupIntervalSec is how often stale pressed keys are evicted,
	// in seconds.
	CleanupIntervalSec int `toml:"cleanup_interval_sec" json:"cleanup_interval_sec" yaml:"cleanup_interval_sec"`

	// IdleFallback enables the compositor idle-monitor fallback on Linux
	// when the input devices are not readable. The fallback maintains the
	// idle clock but cannot count individual events.
	IdleFallback bool `toml:"idle_fallback" json:"idle_fallback" yaml:"idle_fallback"`
}

// ActivityLogConfig controls the periodic CSV snapshot log.
type ActivityLogConfig struct {
	// Path is the CSV file activity snapshots are appended to.
	Path string `toml:"path" json:"path" yaml:"path"`

	// FlushIntervalSec is how often a snapshot record is written and the
	// counters reset. Set to 0 to disable periodic flushing.
	FlushIntervalSec int `toml:"flush_interval_sec" json:"flush_interval_sec" yaml:"flush_interval_sec"`
}

// LoggingConfig holds diagnostic logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			KeyTimeoutMs:       2000,
			PumpIntervalMs:     50,
			CleanupIntervalSec: 10,
			IdleFallback:       true,
		},
		Log: ActivityLogConfig{
			Path:             filepath.Join(DataDir(), "activity.csv"),
			FlushIntervalSec: 60,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "stderr",
			FilePath: filepath.Join(PlatformLogDir(), "activityd.log"),
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path. If the file doesn't
// exist, returns default configuration. Supports TOML, JSON, and YAML
// formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetectAndParse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return cfg, nil
}

// autoDetectAndParse attempts to parse the config in multiple formats.
func autoDetectAndParse(data []byte, cfg *Config) error {
	if _, err := toml.Decode(string(data), cfg); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, cfg); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with ACTIVITYD_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ACTIVITYD_LOG_PATH"); v != "" {
		c.Log.Path = v
	}
	if v := os.Getenv("ACTIVITYD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ACTIVITYD_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Log.Path),
	}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SaveConfig writes the configuration to path as TOML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// LoadOrCreate loads the configuration from path, creating a default
// configuration file if it doesn't exist. The bool reports whether a new
// file was written.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// KeyTimeout returns the configured deduplication window as a duration.
func (c *Config) KeyTimeout() time.Duration {
	return time.Duration(c.Engine.KeyTimeoutMs) * time.Millisecond
}

// PumpInterval returns the configured pump interval as a duration.
func (c *Config) PumpInterval() time.Duration {
	return time.Duration(c.Engine.PumpIntervalMs) * time.Millisecond
}

// CleanupInterval returns the configured cleanup interval as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Engine.CleanupIntervalSec) * time.Second
}

// FlushInterval returns the activity log flush cadence, or 0 when periodic
// flushing is disabled.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Log.FlushIntervalSec) * time.Second
}
