// Package config handles configuration loading, validation, and management
// for activityd.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the base activityd data directory, honoring the
// ACTIVITYD_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("ACTIVITYD_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/activityd/
//   - Linux:   ~/.local/share/activityd/
//   - Windows: %APPDATA%\activityd\
//
// Falls back to ~/.activityd if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "activityd")
	case "linux":
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "activityd")
		}
		return filepath.Join(homeDir(), ".local", "share", "activityd")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "activityd")
		}
		return fallbackDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/activityd/
//   - Linux:   ~/.config/activityd/
//   - Windows: %APPDATA%\activityd\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "activityd")
		}
		return filepath.Join(homeDir(), ".config", "activityd")
	default:
		// macOS and Windows use the same dir for config and data.
		return PlatformDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/activityd/
//   - Linux:   ~/.local/share/activityd/logs/
//   - Windows: %LOCALAPPDATA%\activityd\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "activityd")
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "activityd", "logs")
		}
		return filepath.Join(fallbackDataDir(), "logs")
	default:
		return filepath.Join(PlatformDataDir(), "logs")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), ".activityd")
}
