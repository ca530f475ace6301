package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/orbitalworks/constel/pkg/observability"
)

// Config holds all daemon configuration.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis resolution cache configuration
	Cache CacheConfig

	// Revocation retry queue configuration
	Queue QueueConfig

	// Engine behavior
	Engine EngineConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Health/metrics listener
	HealthPort      string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// CacheConfig holds Redis settings for the resolution cache.
type CacheConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	TTL      time.Duration
}

// QueueConfig holds revocation retry settings.
type QueueConfig struct {
	SweepSchedule     string
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// EngineConfig holds resolution and reconciliation behavior.
type EngineConfig struct {
	RevokeConcurrency int
	SeedFile          string
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Database:        loadDatabaseConfig(),
		Cache:           loadCacheConfig(),
		Queue:           loadQueueConfig(),
		Engine:          loadEngineConfig(),
		Observability:   loadObservabilityConfig(),
		HealthPort:      getEnv("CONSTEL_HEALTH_PORT", "9090"),
		ShutdownTimeout: getEnvDuration("CONSTEL_SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		PrimaryURL:  getEnv("CONSTEL_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("CONSTEL_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("CONSTEL_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("CONSTEL_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("CONSTEL_POSTGRES_MAX_LIFETIME", time.Hour),
		MaxIdleTime: getEnvDuration("CONSTEL_POSTGRES_MAX_IDLE_TIME", 10*time.Minute),
	}
	if replicas := getEnv("CONSTEL_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		for _, url := range strings.Split(replicas, ",") {
			if url = strings.TrimSpace(url); url != "" {
				cfg.ReplicaURLs = append(cfg.ReplicaURLs, url)
			}
		}
	}
	return cfg
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:  getEnvBool("CONSTEL_CACHE_ENABLED", false),
		URL:      getEnv("CONSTEL_REDIS_URL", "localhost:6379"),
		Password: getEnv("CONSTEL_REDIS_PASSWORD", ""),
		DB:       getEnvInt("CONSTEL_REDIS_DB", 0),
		TTL:      getEnvDuration("CONSTEL_CACHE_TTL", 5*time.Minute),
	}
}

func loadQueueConfig() QueueConfig {
	return QueueConfig{
		SweepSchedule:     getEnv("CONSTEL_QUEUE_SWEEP_SCHEDULE", "@every 30s"),
		MaxAttempts:       getEnvInt("CONSTEL_QUEUE_MAX_ATTEMPTS", 8),
		InitialDelay:      getEnvDuration("CONSTEL_QUEUE_INITIAL_DELAY", 30*time.Second),
		MaxDelay:          getEnvDuration("CONSTEL_QUEUE_MAX_DELAY", time.Hour),
		BackoffMultiplier: getEnvFloat("CONSTEL_QUEUE_BACKOFF_MULTIPLIER", 2.0),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		RevokeConcurrency: getEnvInt("CONSTEL_REVOKE_CONCURRENCY", 8),
		SeedFile:          getEnv("CONSTEL_SEED_FILE", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("CONSTEL_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CONSTEL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CONSTEL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CONSTEL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CONSTEL_OTEL_SERVICE_NAME", "constel"),
		OTelServiceVersion: getEnv("CONSTEL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CONSTEL_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Cache.Enabled && c.Cache.URL == "" {
		return fmt.Errorf("redis URL is required when the cache is enabled")
	}
	if c.Queue.SweepSchedule == "" {
		return fmt.Errorf("queue sweep schedule is required")
	}
	if c.Engine.RevokeConcurrency <= 0 {
		return fmt.Errorf("revoke concurrency must be positive")
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
