package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"Defaults", func(c *Config) {}, false},
		{"Empty base URL", func(c *Config) { c.APIBaseURL = "" }, true},
		{"Relative base URL", func(c *Config) { c.APIBaseURL = "/api" }, true},
		{"Non-http scheme", func(c *Config) { c.APIBaseURL = "ftp://example.com" }, true},
		{"HTTPS base URL", func(c *Config) { c.APIBaseURL = "https://api.example.com" }, false},
		{"Empty token key", func(c *Config) { c.TokenKey = "" }, true},
		{"Token key under chat prefix", func(c *Config) { c.TokenKey = "qrguard.chat.token" }, true},
		{"Zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"Unknown storage driver", func(c *Config) { c.StorageDriver = "indexeddb" }, true},
		{"Redis without URL", func(c *Config) { c.StorageDriver = StorageRedis; c.RedisURL = "" }, true},
		{"Redis with URL", func(c *Config) { c.StorageDriver = StorageRedis }, false},
		{"Unknown chat transport", func(c *Config) { c.ChatTransport = "sse" }, true},
		{"Websocket chat transport", func(c *Config) { c.ChatTransport = ChatWebSocket }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_BASE_URL", "https://scan.example.com/")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("STORAGE_DRIVER", "  MEMORY ")
	t.Setenv("APP_ENV", "development")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://scan.example.com", c.APIBaseURL)
	assert.Equal(t, 3*time.Second, c.RequestTimeout)
	assert.Equal(t, StorageMemory, c.StorageDriver)
	assert.Equal(t, "qrguard.auth.token", c.TokenKey)
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORAGE_DRIVER", StorageMemory)

	body := []byte("API_BASE_URL: http://qr.internal:9000\nCHAT_TRANSPORT: websocket\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), body, 0o600))

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://qr.internal:9000", c.APIBaseURL)
	assert.Equal(t, ChatWebSocket, c.ChatTransport)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("APP_ENV", "development")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORAGE_DRIVER=memory\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("STORAGE_DRIVER")
	})

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, c.StorageDriver)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadConfig_SQLiteDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORAGE_DRIVER", StorageSQLite)
	t.Setenv("STORAGE_PATH", "")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultStoragePath(), c.StoragePath)
}
