// Package config loads application configuration from an optional YAML
// file and environment variables, environment taking precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names accepted by Load.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

const (
	defaultListenAddr = ":8080"
	defaultBackend    = BackendFS
	defaultCacheDir   = ".crucible/cache"
	defaultDBPath     = "crucible.db"
	defaultExecutor   = "serial"
	defaultMaxWorkers = 8

	envConfigFile     = "CRUCIBLE_CONFIG"
	envListenAddr     = "CRUCIBLE_LISTEN_ADDR"
	envStoreBackend   = "CRUCIBLE_STORE_BACKEND"
	envCacheDir       = "CRUCIBLE_CACHE_DIR"
	envDBPath         = "CRUCIBLE_DB_PATH"
	envExecutor       = "CRUCIBLE_EXECUTOR"
	envMaxWorkers     = "CRUCIBLE_MAX_WORKERS"
	envLogLevel       = "CRUCIBLE_LOG_LEVEL"
	envRefreshCache   = "CRUCIBLE_REFRESH_CACHE"
	envDefaultTimeout = "CRUCIBLE_DEFAULT_TIMEOUT"
)

// Config holds application configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string
	// StoreBackend selects the result store implementation, "fs" or
	// "sqlite".
	StoreBackend string
	// CacheDir is the fs store's root directory.
	CacheDir string
	// DBPath is the sqlite store's database file.
	DBPath string
	// Executor is the default execution strategy for submissions that
	// name none.
	Executor string
	// MaxWorkers bounds the pool executor's concurrency.
	MaxWorkers int
	// LogLevel is the minimum level emitted by the application logger.
	LogLevel slog.Level
	// RefreshCache, when set, makes every run bypass cache reads and
	// overwrite on success unless the call says otherwise.
	RefreshCache bool
	// DefaultTimeout applies to attempts that carry no timeout of their
	// own. Zero disables it.
	DefaultTimeout time.Duration
}

// fileConfig is the YAML shape of a config file. Absent fields leave the
// corresponding Config fields untouched.
type fileConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	StoreBackend   string `yaml:"store_backend"`
	CacheDir       string `yaml:"cache_dir"`
	DBPath         string `yaml:"db_path"`
	Executor       string `yaml:"executor"`
	MaxWorkers     *int   `yaml:"max_workers"`
	LogLevel       string `yaml:"log_level"`
	RefreshCache   *bool  `yaml:"refresh_cache"`
	DefaultTimeout string `yaml:"default_timeout"`
}

// Load builds the configuration from defaults, then the YAML file named by
// CRUCIBLE_CONFIG (if any), then environment variables.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:   defaultListenAddr,
		StoreBackend: defaultBackend,
		CacheDir:     defaultCacheDir,
		DBPath:       defaultDBPath,
		Executor:     defaultExecutor,
		MaxWorkers:   defaultMaxWorkers,
		LogLevel:     slog.LevelInfo,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.StoreBackend != BackendFS && cfg.StoreBackend != BackendSQLite {
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if cfg.MaxWorkers < 1 {
		return Config{}, fmt.Errorf("max workers must be positive, got %d", cfg.MaxWorkers)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.StoreBackend != "" {
		cfg.StoreBackend = fc.StoreBackend
	}
	if fc.CacheDir != "" {
		cfg.CacheDir = fc.CacheDir
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.Executor != "" {
		cfg.Executor = fc.Executor
	}
	if fc.MaxWorkers != nil {
		cfg.MaxWorkers = *fc.MaxWorkers
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.RefreshCache != nil {
		cfg.RefreshCache = *fc.RefreshCache
	}
	if fc.DefaultTimeout != "" {
		d, err := time.ParseDuration(fc.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("parse default_timeout %q: %w", fc.DefaultTimeout, err)
		}
		cfg.DefaultTimeout = d
	}
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envStoreBackend); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv(envCacheDir); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envExecutor); v != "" {
		cfg.Executor = v
	}
	if v := os.Getenv(envMaxWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", envMaxWorkers, v, err)
		}
		cfg.MaxWorkers = n
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envRefreshCache); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", envRefreshCache, v, err)
		}
		cfg.RefreshCache = b
	}
	if v := os.Getenv(envDefaultTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", envDefaultTimeout, v, err)
		}
		cfg.DefaultTimeout = d
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
