// Package config loads application settings. Values come from a
// config.toml (desktop installs ship one next to the data directory),
// overridden by environment variables so scripted runs and tests can
// tweak single settings without editing the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// HTTP server for the desktop UI shell.
	Port string

	// Data directory holding entities/ and months/.
	DataDir string

	// Debounce window for the storage writer.
	FlushDebounce time.Duration

	// PersistUndo keeps the undo history across restarts; default is a
	// session-scoped history that resets on relaunch.
	PersistUndo bool

	LogLevel string
}

// fileConfig mirrors config.toml.
type fileConfig struct {
	Server struct {
		Port string `toml:"port"`
	} `toml:"server"`
	Storage struct {
		Dir        string `toml:"dir"`
		DebounceMs int    `toml:"debounce_ms"`
	} `toml:"storage"`
	Undo struct {
		Persist bool `toml:"persist"`
	} `toml:"undo"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// DefaultConfigPath is where Load looks for config.toml unless
// LEFTOVER_CONFIG points elsewhere.
func DefaultConfigPath() string {
	if p := os.Getenv("LEFTOVER_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "leftover", "config.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "leftover", "config.toml")
}

// Load builds the configuration: defaults, then config.toml if present,
// then environment overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          "8090",
		DataDir:       "./data",
		FlushDebounce: 500 * time.Millisecond,
		LogLevel:      "info",
	}

	path := DefaultConfigPath()
	if data, err := os.ReadFile(path); err == nil {
		var fc fileConfig
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if fc.Server.Port != "" {
			cfg.Port = fc.Server.Port
		}
		if fc.Storage.Dir != "" {
			cfg.DataDir = fc.Storage.Dir
		}
		if fc.Storage.DebounceMs > 0 {
			cfg.FlushDebounce = time.Duration(fc.Storage.DebounceMs) * time.Millisecond
		}
		cfg.PersistUndo = fc.Undo.Persist
		if fc.Log.Level != "" {
			cfg.LogLevel = fc.Log.Level
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataDir = getEnv("LEFTOVER_DATA_DIR", cfg.DataDir)
	cfg.FlushDebounce = getEnvDuration("LEFTOVER_FLUSH_DEBOUNCE", cfg.FlushDebounce)
	cfg.PersistUndo = getEnvBool("LEFTOVER_PERSIST_UNDO", cfg.PersistUndo)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// Validate checks the configuration, collecting every problem so the user
// fixes them in one pass.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port %q: must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DataDir == "" {
		errs = append(errs, "data directory cannot be empty")
	} else if _, err := os.Stat(c.DataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
			errs = append(errs, fmt.Sprintf("cannot create data directory %q: %v", c.DataDir, err))
		}
	}

	if c.FlushDebounce < 10*time.Millisecond {
		errs = append(errs, fmt.Sprintf("invalid flush debounce %v: must be at least 10ms", c.FlushDebounce))
	} else if c.FlushDebounce > 10*time.Second {
		errs = append(errs, fmt.Sprintf("invalid flush debounce %v: must be at most 10s", c.FlushDebounce))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// WriteDefault writes a commented config.toml to path, creating parent
// directories. Used by leftover-init.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	var fc fileConfig
	fc.Server.Port = "8090"
	fc.Storage.Dir = "./data"
	fc.Storage.DebounceMs = 500
	fc.Undo.Persist = false
	fc.Log.Level = "info"

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(fc)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
