package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(envListenAddr, "")
	t.Setenv(envConfigFile, "")
	t.Setenv(envStorageDir, "")
	t.Setenv(envLogLevel, "")
	t.Setenv(envHealthTimeout, "")

	cfg := Load()

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.StorageDir != defaultStorageDir {
		t.Errorf("StorageDir = %q, want %q", cfg.StorageDir, defaultStorageDir)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("ConfigFile = %q, want empty", cfg.ConfigFile)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.HealthTimeout != defaultHealthTimeout {
		t.Errorf("HealthTimeout = %v, want %v", cfg.HealthTimeout, defaultHealthTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envConfigFile, "/etc/graphkeep.yaml")
	t.Setenv(envStorageDir, "/tmp/graph")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envHealthTimeout, "250ms")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.ConfigFile != "/etc/graphkeep.yaml" {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, "/etc/graphkeep.yaml")
	}
	if cfg.StorageDir != "/tmp/graph" {
		t.Errorf("StorageDir = %q, want %q", cfg.StorageDir, "/tmp/graph")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.HealthTimeout != 250*time.Millisecond {
		t.Errorf("HealthTimeout = %v, want 250ms", cfg.HealthTimeout)
	}
}

func TestLoadIgnoresBadHealthTimeout(t *testing.T) {
	t.Setenv(envHealthTimeout, "soon")

	cfg := Load()
	if cfg.HealthTimeout != defaultHealthTimeout {
		t.Errorf("HealthTimeout = %v, want default %v", cfg.HealthTimeout, defaultHealthTimeout)
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

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
}
