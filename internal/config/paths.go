package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultDir returns the per-user directory holding config.yml and local state.
// It falls back to ./.qrguard when no home directory can be resolved.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "qrguard")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".qrguard")
	}
	return ".qrguard"
}

// DefaultStoragePath is the sqlite file used when STORAGE_PATH is empty.
func DefaultStoragePath() string {
	return filepath.Join(DefaultDir(), "local.db")
}

// Defaults returns a validated development config without reading files or
// the environment. The in-memory storage driver is selected.
func Defaults() *Config {
	return &Config{
		APIBaseURL:         "http://localhost:8080",
		RequestTimeout:     15 * time.Second,
		TokenKey:           "qrguard.auth.token",
		ChatPrefix:         "qrguard.chat.",
		ChatTransport:      ChatHTTP,
		StorageDriver:      StorageMemory,
		RedisURL:           "localhost:6379",
		OAuthCallback:      "127.0.0.1:8765",
		OAuthTimeout:       3 * time.Minute,
		NoticeTTL:          5 * time.Second,
		NoticeCapacity:     20,
		ImageMaxEdgePx:     1600,
		FeatureFlags:       "chat_widget=on,image_analysis=on",
		LogLevel:           "warn",
		TracingExporter:    "stdout",
		OTLPEndpoint:       "localhost:4318",
		TracingSampleRatio: 1.0,
		Env:                "development",
	}
}
