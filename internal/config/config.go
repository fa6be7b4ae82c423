// Package config reads the daemon's configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backend selectors.
const (
	BackendSQLite = "sqlite"
	BackendObject = "object"
)

// Config holds all configuration for the daemon.
type Config struct {
	// Server
	Port  int
	Debug bool

	// Storage
	StorageBackend  string // sqlite or object
	SQLitePath      string
	ObjectStorePath string // local blob root; ignored when S3 is configured

	// S3-compatible object storage (used when Endpoint is set and the
	// object backend is selected)
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// Content loader
	ContentPath          string
	ContentCacheSize     int
	ContentCacheTTL      time.Duration
	ContentCacheDisabled bool

	// RabbitMQ; empty disables event publishing
	AMQPURL string

	// Open-ended grading; empty provider disables rubric scoring
	LLMProvider string // claude, openai, or ollama
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnvInt("PORT", 8080),
		Debug: getEnvBool("DEBUG", false),

		StorageBackend:  getEnv("STORAGE_BACKEND", BackendSQLite),
		SQLitePath:      getEnv("SQLITE_PATH", "./pathwise.db"),
		ObjectStorePath: getEnv("OBJECT_STORE_PATH", "./data"),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", "pathwise"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),

		ContentPath:          getEnv("CONTENT_PATH", "./content"),
		ContentCacheSize:     getEnvInt("CONTENT_CACHE_SIZE", 128),
		ContentCacheTTL:      time.Duration(getEnvInt("CONTENT_CACHE_TTL", 300)) * time.Second,
		ContentCacheDisabled: getEnvBool("CONTENT_CACHE_DISABLED", false),

		AMQPURL: getEnv("RABBITMQ_URL", ""),

		LLMProvider: getEnv("LLM_PROVIDER", ""),
		LLMModel:    getEnv("LLM_MODEL", ""),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		LLMBaseURL:  getEnv("LLM_BASE_URL", ""),
	}

	if cfg.StorageBackend != BackendSQLite && cfg.StorageBackend != BackendObject {
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q",
			BackendSQLite, BackendObject, cfg.StorageBackend)
	}
	if cfg.StorageBackend == BackendObject && cfg.S3Endpoint != "" {
		if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return nil, fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set when S3_ENDPOINT is")
		}
	}
	switch cfg.LLMProvider {
	case "", "ollama":
	case "claude", "openai":
		if cfg.LLMAPIKey == "" {
			return nil, fmt.Errorf("LLM_API_KEY must be set for provider %q", cfg.LLMProvider)
		}
	default:
		return nil, fmt.Errorf("LLM_PROVIDER must be claude, openai, or ollama, got %q", cfg.LLMProvider)
	}

	return cfg, nil
}

// UseS3 reports whether the object backend should talk to an S3 endpoint
// rather than the local filesystem.
func (c *Config) UseS3() bool {
	return c.StorageBackend == BackendObject && c.S3Endpoint != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
