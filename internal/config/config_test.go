package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envConfigFile, envListenAddr, envStoreBackend, envCacheDir,
		envDBPath, envExecutor, envMaxWorkers, envLogLevel,
		envRefreshCache, envDefaultTimeout,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.StoreBackend != BackendFS {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendFS)
	}
	if cfg.CacheDir != defaultCacheDir {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, defaultCacheDir)
	}
	if cfg.Executor != defaultExecutor {
		t.Errorf("Executor = %q, want %q", cfg.Executor, defaultExecutor)
	}
	if cfg.MaxWorkers != defaultMaxWorkers {
		t.Errorf("MaxWorkers = %d, want %d", cfg.MaxWorkers, defaultMaxWorkers)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.RefreshCache {
		t.Error("RefreshCache = true, want false")
	}
	if cfg.DefaultTimeout != 0 {
		t.Errorf("DefaultTimeout = %v, want 0", cfg.DefaultTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envStoreBackend, BackendSQLite)
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envExecutor, "pool")
	t.Setenv(envMaxWorkers, "16")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envRefreshCache, "true")
	t.Setenv(envDefaultTimeout, "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendSQLite)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.Executor != "pool" {
		t.Errorf("Executor = %q, want %q", cfg.Executor, "pool")
	}
	if cfg.MaxWorkers != 16 {
		t.Errorf("MaxWorkers = %d, want 16", cfg.MaxWorkers)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if !cfg.RefreshCache {
		t.Error("RefreshCache = false, want true")
	}
	if cfg.DefaultTimeout != 90*time.Second {
		t.Errorf("DefaultTimeout = %v, want 90s", cfg.DefaultTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "crucible.yaml")
	body := []byte(`
listen_addr: ":7070"
store_backend: sqlite
db_path: from-file.db
max_workers: 4
log_level: warn
refresh_cache: true
default_timeout: 2m
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(envConfigFile, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":7070")
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendSQLite)
	}
	if cfg.DBPath != "from-file.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "from-file.db")
	}
	if cfg.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", cfg.MaxWorkers)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelWarn)
	}
	if !cfg.RefreshCache {
		t.Error("RefreshCache = false, want true")
	}
	if cfg.DefaultTimeout != 2*time.Minute {
		t.Errorf("DefaultTimeout = %v, want 2m", cfg.DefaultTimeout)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "crucible.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7070\"\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(envConfigFile, path)
	t.Setenv(envListenAddr, ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q (env over file)", cfg.ListenAddr, ":9090")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", envStoreBackend, "etcd"},
		{"non-numeric workers", envMaxWorkers, "many"},
		{"zero workers", envMaxWorkers, "0"},
		{"bad refresh flag", envRefreshCache, "always"},
		{"bad timeout", envDefaultTimeout, "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(envConfigFile, filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a missing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info record emitted at warn level: %s", buf.String())
	}

	logger.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("warn record suppressed at warn level")
	}
}
