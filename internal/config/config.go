/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment  string
	HTTPBind     string
	HTTPPort     int
	SoundsDir    string // Root directory of the sound catalog
	SettingsPath string // Path of the persisted settings document

	// Catalog watcher tuning
	WatchDebounce time.Duration // Coalescing window for filesystem change bursts
	WatchPoll     time.Duration // Fixed-interval rescan backstop

	// Player mode (cartwall play)
	ServerURL      string        // Base URL of the cartwall server to attach to
	ReconnectDelay time.Duration // Fixed delay between reconnect attempts
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:  getEnv("CARTWALL_ENV", "development"),
		HTTPBind:     getEnv("CARTWALL_HTTP_BIND", "0.0.0.0"),
		HTTPPort:     getEnvInt("CARTWALL_HTTP_PORT", 3000),
		SoundsDir:    getEnv("CARTWALL_SOUNDS_DIR", "./sounds"),
		SettingsPath: getEnv("CARTWALL_SETTINGS_PATH", "./settings.json"),

		WatchDebounce: getEnvDuration("CARTWALL_WATCH_DEBOUNCE", 300*time.Millisecond),
		WatchPoll:     getEnvDuration("CARTWALL_WATCH_POLL", 5*time.Second),

		ServerURL:      getEnv("CARTWALL_SERVER_URL", "http://127.0.0.1:3000"),
		ReconnectDelay: getEnvDuration("CARTWALL_RECONNECT_DELAY", 2*time.Second),
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("CARTWALL_HTTP_PORT %d out of range", cfg.HTTPPort)
	}
	if cfg.WatchDebounce <= 0 {
		return nil, fmt.Errorf("CARTWALL_WATCH_DEBOUNCE must be positive")
	}
	if cfg.WatchPoll <= 0 {
		return nil, fmt.Errorf("CARTWALL_WATCH_POLL must be positive")
	}
	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("CARTWALL_RECONNECT_DELAY must be positive")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvDuration parses a Go duration string (e.g. "300ms", "5s"), or returns def.
func getEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}
