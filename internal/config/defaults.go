package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName names the per-user config and log directories.
const appName = "macrotoggle"

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - Linux: $XDG_CONFIG_HOME/macrotoggle/ or ~/.config/macrotoggle/
//   - other: ~/.macrotoggle/
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		return linuxConfigDir()
	default:
		return fallbackDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - Linux: $XDG_STATE_HOME/macrotoggle/ or ~/.local/state/macrotoggle/
//   - other: ~/.macrotoggle/logs/
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "linux":
		return linuxStateDir()
	default:
		return filepath.Join(fallbackDir(), "logs")
	}
}

// Linux-specific paths following XDG Base Directory Specification

func linuxConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

func linuxStateDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", appName)
}

func fallbackDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+appName)
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "macros.toml")
}

// SupportedConfigFormats returns the list of supported config file
// extensions, in search order.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	// Search order:
	// 1. Current directory
	// 2. Config directory
	searchDirs := []string{
		".",
		PlatformConfigDir(),
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "macros."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
