package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	apperrors "graphfeed/backend/pkg/errors"
)

// Store backends
const (
	StoreNeo4j  = "neo4j"
	StoreMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Store
	StoreBackend   string
	StoreOpTimeout time.Duration

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Engine
	ToggleMaxAttempts    int
	RetryBaseBackoff     time.Duration
	TimelineDefaultLimit int
	TimelineMaxLimit     int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "5003"),
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", ""),
		StoreBackend:         getEnv("STORE_BACKEND", StoreNeo4j),
		StoreOpTimeout:       getEnvDuration("STORE_OP_TIMEOUT", 5*time.Second),
		Neo4jURI:             getEnv("NEO4J_URI", "neo4j://127.0.0.1:7687"),
		Neo4jUser:            getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:        getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:        getEnv("NEO4J_DATABASE", "blog-app"),
		ToggleMaxAttempts:    getEnvInt("TOGGLE_MAX_ATTEMPTS", 5),
		RetryBaseBackoff:     getEnvDuration("RETRY_BASE_BACKOFF", 20*time.Millisecond),
		TimelineDefaultLimit: getEnvInt("TIMELINE_DEFAULT_LIMIT", 20),
		TimelineMaxLimit:     getEnvInt("TIMELINE_MAX_LIMIT", 100),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreNeo4j:
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	default:
		return apperrors.NewConfigValidationFailed("STORE_BACKEND", fmt.Sprintf("unknown backend %q", c.StoreBackend))
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return apperrors.NewConfigValidationFailed("LOG_LEVEL", err.Error())
		}
	}
	if c.StoreOpTimeout <= 0 {
		return apperrors.NewConfigValidationFailed("STORE_OP_TIMEOUT", "must be positive")
	}
	if c.ToggleMaxAttempts < 1 {
		return apperrors.NewConfigValidationFailed("TOGGLE_MAX_ATTEMPTS", "must be at least 1")
	}
	if c.TimelineDefaultLimit < 1 || c.TimelineDefaultLimit > c.TimelineMaxLimit {
		return apperrors.NewConfigValidationFailed("TIMELINE_DEFAULT_LIMIT", "must be between 1 and TIMELINE_MAX_LIMIT")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
