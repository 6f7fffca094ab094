package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 2000, cfg.Engine.KeyTimeoutMs)
	assert.Equal(t, 2*time.Second, cfg.KeyTimeout())
	assert.Equal(t, 50*time.Millisecond, cfg.PumpInterval())
	assert.Equal(t, 10*time.Second, cfg.CleanupInterval())
	assert.Equal(t, time.Minute, cfg.FlushInterval())
	assert.True(t, cfg.Engine.IdleFallback)

	assert.Contains(t, cfg.Log.Path, "activityd")
	assert.True(t, strings.HasSuffix(cfg.Log.Path, "activity.csv"))

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	assert.True(t, strings.HasSuffix(path, "config.toml"))
	assert.Contains(t, path, "activityd")
}

func TestLoadNonexistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing", "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Engine.KeyTimeoutMs)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[engine]
key_timeout_ms = 1500
pump_interval_ms = 25

[log]
path = "/custom/activity.csv"
flush_interval_sec = 30

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.Engine.KeyTimeoutMs)
	assert.Equal(t, 25, cfg.Engine.PumpIntervalMs)
	assert.Equal(t, "/custom/activity.csv", cfg.Log.Path)
	assert.Equal(t, 30, cfg.Log.FlushIntervalSec)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset sections keep defaults.
	assert.Equal(t, 10, cfg.Engine.CleanupIntervalSec)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  key_timeout_ms: 3000
log:
  path: /custom/activity.csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Engine.KeyTimeoutMs)
	assert.Equal(t, "/custom/activity.csv", cfg.Log.Path)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"engine": {"key_timeout_ms": 500}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Engine.KeyTimeoutMs)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is not valid toml {{{"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ACTIVITYD_LOG_PATH", "/env/activity.csv")
	t.Setenv("ACTIVITYD_LOG_LEVEL", "error")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/env/activity.csv", cfg.Log.Path)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"key timeout too small", func(c *Config) { c.Engine.KeyTimeoutMs = 50 }, "engine.key_timeout_ms"},
		{"key timeout too large", func(c *Config) { c.Engine.KeyTimeoutMs = 120000 }, "engine.key_timeout_ms"},
		{"zero pump interval", func(c *Config) { c.Engine.PumpIntervalMs = 0 }, "engine.pump_interval_ms"},
		{"empty log path", func(c *Config) { c.Log.Path = "" }, "log.path"},
		{"negative flush interval", func(c *Config) { c.Log.FlushIntervalSec = -1 }, "log.flush_interval_sec"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"file output without path", func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.FilePath = ""
		}, "logging.file_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2000, cfg.Engine.KeyTimeoutMs)

	// The written file round-trips.
	cfg2, created2, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, cfg.Engine, cfg2.Engine)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Log.Path = filepath.Join(dir, "a", "b", "activity.csv")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "activityd.log")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "a", "b"))
	assert.DirExists(t, filepath.Join(dir, "logs"))
}

func TestLoaderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nkey_timeout_ms = 2000\n"), 0600))

	l := NewLoader(path)
	defer l.Close()

	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nkey_timeout_ms = 500\n"), 0600))

	select {
	case cfg := <-changed:
		assert.Equal(t, 500, cfg.Engine.KeyTimeoutMs)
		assert.Equal(t, 500, l.Config().Engine.KeyTimeoutMs)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestLoaderRejectsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nkey_timeout_ms = 2000\n"), 0600))

	l := NewLoader(path)
	defer l.Close()

	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())

	// Out-of-range timeout fails validation; the loaded config is kept.
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nkey_timeout_ms = 1\n"), 0600))

	select {
	case err := <-l.Errors():
		assert.Contains(t, err.Error(), "engine.key_timeout_ms")
	case <-time.After(5 * time.Second):
		t.Fatal("invalid config was not reported")
	}
	assert.Equal(t, 2000, l.Config().Engine.KeyTimeoutMs)
}
