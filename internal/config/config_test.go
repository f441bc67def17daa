package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points config loading at an empty location so the developer's
// real config.toml never leaks into tests.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LEFTOVER_CONFIG", filepath.Join(dir, "config.toml"))
	t.Setenv("PORT", "")
	t.Setenv("LEFTOVER_DATA_DIR", "")
	t.Setenv("LEFTOVER_FLUSH_DEBOUNCE", "")
	t.Setenv("LEFTOVER_PERSIST_UNDO", "")
	t.Setenv("LOG_LEVEL", "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8090" {
		t.Errorf("Port = %q, want 8090", cfg.Port)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.FlushDebounce != 500*time.Millisecond {
		t.Errorf("FlushDebounce = %v, want 500ms", cfg.FlushDebounce)
	}
	if cfg.PersistUndo {
		t.Error("PersistUndo defaults to false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
port = "9999"

[storage]
dir = "/tmp/leftover-test"
debounce_ms = 250

[undo]
persist = true

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.DataDir != "/tmp/leftover-test" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.FlushDebounce != 250*time.Millisecond {
		t.Errorf("FlushDebounce = %v, want 250ms", cfg.FlushDebounce)
	}
	if !cfg.PersistUndo {
		t.Error("PersistUndo = false, want true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = \"9999\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("PORT", "7777")
	t.Setenv("LEFTOVER_FLUSH_DEBOUNCE", "1s")
	t.Setenv("LEFTOVER_PERSIST_UNDO", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "7777" {
		t.Errorf("Port = %q, want env value 7777", cfg.Port)
	}
	if cfg.FlushDebounce != time.Second {
		t.Errorf("FlushDebounce = %v, want 1s", cfg.FlushDebounce)
	}
	if !cfg.PersistUndo {
		t.Error("PersistUndo = false, want true")
	}
}

func TestLoad_MalformedFileIsAnError(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("not toml ==="), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(); err == nil {
		t.Error("Load() accepted malformed toml")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Port:          "not-a-port",
		DataDir:       filepath.Join(t.TempDir(), "data"),
		FlushDebounce: time.Millisecond,
		LogLevel:      "loud",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	msg := err.Error()
	for _, want := range []string{"port", "debounce", "log level"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q: %v", want, msg)
		}
	}
}

func TestValidate_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh", "data")
	cfg := &Config{
		Port:          "8090",
		DataDir:       dir,
		FlushDebounce: 500 * time.Millisecond,
		LogLevel:      "info",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if err := WriteDefault(path); err == nil {
		t.Error("WriteDefault() overwrote an existing config")
	}

	t.Setenv("LEFTOVER_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() of written default error = %v", err)
	}
	cfg.DataDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Errorf("written default does not validate: %v", err)
	}
}
