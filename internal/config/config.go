// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SetDefaults registers the default configuration values. Called once
// before the config file and environment are read so every lookup has a
// sane fallback.
func SetDefaults() {
	viper.SetDefault("database.path", "~/.local/share/dvf/dvf.db")
	viper.SetDefault("import.chunk_size", 30000)
	viper.SetDefault("analytics.min_sample_size", 4)
	viper.SetDefault("analytics.iqr_multiplier", 1.5)
	viper.SetDefault("analytics.months_back", 24)
	viper.SetDefault("analytics.surface_band_pct", 0.30)
	viper.SetDefault("analytics.query_timeout", "10s")
	viper.SetDefault("analytics.cache_ttl", "15m")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// DatabasePath resolves the configured database location with ~ and
// environment variables expanded.
func DatabasePath() string {
	return ExpandPath(viper.GetString("database.path"))
}

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
