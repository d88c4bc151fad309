package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultStorageDir    = "graphkeep-data"
	defaultHealthTimeout = 10 * time.Second

	envListenAddr    = "GRAPHKEEP_LISTEN_ADDR"
	envConfigFile    = "GRAPHKEEP_CONFIG_FILE"
	envStorageDir    = "GRAPHKEEP_STORAGE_DIR"
	envLogLevel      = "GRAPHKEEP_LOG_LEVEL"
	envHealthTimeout = "GRAPHKEEP_HEALTH_TIMEOUT"
)

// Config holds process configuration loaded from environment variables.
// Resource settings (storage, caches) live in the config tree referenced by
// ConfigFile.
type Config struct {
	ListenAddr    string
	ConfigFile    string
	StorageDir    string
	LogLevel      slog.Level
	HealthTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		StorageDir:    defaultStorageDir,
		LogLevel:      slog.LevelInfo,
		HealthTimeout: defaultHealthTimeout,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envConfigFile); v != "" {
		cfg.ConfigFile = v
	}
	if v := os.Getenv(envStorageDir); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envHealthTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.HealthTimeout = d
		}
	}

	return cfg
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
