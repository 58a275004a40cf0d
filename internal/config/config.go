// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Chat transports accepted by CHAT_TRANSPORT.
const (
	ChatHTTP      = "http"
	ChatWebSocket = "websocket"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	APIBaseURL         string        `mapstructure:"API_BASE_URL"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TokenKey           string        `mapstructure:"TOKEN_STORAGE_KEY"`
	ChatPrefix         string        `mapstructure:"CHAT_STORAGE_PREFIX"`
	ChatTransport      string        `mapstructure:"CHAT_TRANSPORT"`
	StorageDriver      string        `mapstructure:"STORAGE_DRIVER"`
	StoragePath        string        `mapstructure:"STORAGE_PATH"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	OAuthCallback      string        `mapstructure:"OAUTH_CALLBACK_ADDR"`
	OAuthTimeout       time.Duration `mapstructure:"OAUTH_TIMEOUT"`
	NoticeTTL          time.Duration `mapstructure:"NOTICE_TTL"`
	NoticeCapacity     int           `mapstructure:"NOTICE_CAPACITY"`
	ImageMaxEdgePx     int           `mapstructure:"IMAGE_MAX_EDGE_PX"`
	FeatureFlags       string        `mapstructure:"FEATURE_FLAGS"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	MetricsAddr        string        `mapstructure:"METRICS_ADDR"`
	TracingEnabled     bool          `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string        `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string        `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64       `mapstructure:"TRACING_SAMPLE_RATIO"`
	Env                string        `mapstructure:"APP_ENV"`
}

var defaults = map[string]any{
	"API_BASE_URL":         "http://localhost:8080",
	"REQUEST_TIMEOUT":      "15s",
	"TOKEN_STORAGE_KEY":    "qrguard.auth.token",
	"CHAT_STORAGE_PREFIX":  "qrguard.chat.",
	"CHAT_TRANSPORT":       ChatHTTP,
	"STORAGE_DRIVER":       StorageSQLite,
	"STORAGE_PATH":         "",
	"REDIS_URL":            "localhost:6379",
	"OAUTH_CALLBACK_ADDR":  "127.0.0.1:8765",
	"OAUTH_TIMEOUT":        "3m",
	"NOTICE_TTL":           "5s",
	"NOTICE_CAPACITY":      20,
	"IMAGE_MAX_EDGE_PX":    1600,
	"FEATURE_FLAGS":        "chat_widget=on,image_analysis=on",
	"LOG_LEVEL":            "warn",
	"METRICS_ADDR":         "",
	"TRACING_ENABLED":      false,
	"TRACING_EXPORTER":     "stdout",
	"OTLP_ENDPOINT":        "localhost:4318",
	"TRACING_SAMPLE_RATIO": 1.0,
	"APP_ENV":              "development",
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath(DefaultDir())
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	env := strings.TrimSpace(v.GetString("APP_ENV"))
	if env != "" && env != "development" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config.%s.yml: %w", env, err)
			}
		} else {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) normalize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.ChatTransport = strings.ToLower(strings.TrimSpace(c.ChatTransport))
	c.TokenKey = strings.TrimSpace(c.TokenKey)
	if c.StorageDriver == StorageSQLite && c.StoragePath == "" {
		c.StoragePath = DefaultStoragePath()
	}
}

// Validate ensures that required configuration values are present and usable.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	if c.TokenKey == "" {
		return errors.New("TOKEN_STORAGE_KEY is required")
	}
	if c.ChatPrefix == "" {
		return errors.New("CHAT_STORAGE_PREFIX is required")
	}
	if strings.HasPrefix(c.TokenKey, c.ChatPrefix) {
		return errors.New("TOKEN_STORAGE_KEY must not live under CHAT_STORAGE_PREFIX")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}

	switch c.StorageDriver {
	case StorageMemory, StorageSQLite:
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.ChatTransport {
	case ChatHTTP, ChatWebSocket:
	default:
		return fmt.Errorf("unknown CHAT_TRANSPORT %q", c.ChatTransport)
	}

	if u.Scheme == "http" && (c.Env == "production" || c.Env == "prod") {
		log.Println("WARNING: API_BASE_URL is plain http in production. Bearer tokens will travel unencrypted.")
	}

	return nil
}
