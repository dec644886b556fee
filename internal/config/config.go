// Package config provides configuration management for the portfolio tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	History       HistoryConfig
	Cron          CronConfig
	PriceProvider PriceProviderConfig
	Cache         CacheConfig
	Chart         ChartConfig
	Logging       LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	PublicURL       string // base URL the scheduler uses to chain batches to itself
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int // per-client limit on public routes
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
}

// URL returns the connection URL used by the migration tool.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// History backends
const (
	HistoryBackendPostgres   = "postgres"
	HistoryBackendClickHouse = "clickhouse"
)

// HistoryConfig selects where valuation snapshots are stored
type HistoryConfig struct {
	Backend string
}

// CronConfig holds scheduler configuration
type CronConfig struct {
	Secret            string
	TargetExecutionMs int64
	MinBatchSize      int
	MaxBatchSize      int
	BatchFraction     float64
	ChainTimeout      time.Duration
}

// PriceProviderConfig holds market data provider configuration
type PriceProviderConfig struct {
	BaseURL        string
	APIKey         string
	RequestsPerSec float64
	CallsPerMinute int // shared across instances through Redis; 0 disables
	PageSize       int
	Pages          int
	Timeout        time.Duration
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// ChartConfig holds chart aggregation configuration
type ChartConfig struct {
	Timezone string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			PublicURL:       strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestsPerSec:  getEnvAsInt("SERVER_REQUESTS_PER_SEC", 20),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "folio"),
				User:           getEnv("POSTGRES_USER", "folio"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "folio"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		History: HistoryConfig{
			Backend: strings.ToLower(getEnv("HISTORY_BACKEND", HistoryBackendPostgres)),
		},
		Cron: CronConfig{
			Secret:            getEnv("CRON_SECRET", ""),
			TargetExecutionMs: int64(getEnvAsInt("CRON_TARGET_EXECUTION_MS", 5000)),
			MinBatchSize:      getEnvAsInt("CRON_MIN_BATCH_SIZE", 2),
			MaxBatchSize:      getEnvAsInt("CRON_MAX_BATCH_SIZE", 50),
			BatchFraction:     getEnvAsFloat("CRON_BATCH_FRACTION", 0.05),
			ChainTimeout:      getEnvAsDuration("CRON_CHAIN_TIMEOUT", 30*time.Second),
		},
		PriceProvider: PriceProviderConfig{
			BaseURL:        strings.TrimRight(getEnv("PRICE_PROVIDER_URL", "https://api.coingecko.com/api/v3"), "/"),
			APIKey:         getEnv("PRICE_PROVIDER_API_KEY", ""),
			RequestsPerSec: getEnvAsFloat("PRICE_PROVIDER_RPS", 0.5),
			CallsPerMinute: getEnvAsInt("PRICE_PROVIDER_CALLS_PER_MINUTE", 30),
			PageSize:       getEnvAsInt("PRICE_PROVIDER_PAGE_SIZE", 250),
			Pages:          getEnvAsInt("PRICE_PROVIDER_PAGES", 4),
			Timeout:        getEnvAsDuration("PRICE_PROVIDER_TIMEOUT", 20*time.Second),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 15*time.Minute),
		},
		Chart: ChartConfig{
			Timezone: getEnv("CHART_TIMEZONE", "UTC"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks for settings that cannot work together
func (c *Config) Validate() error {
	switch c.History.Backend {
	case HistoryBackendPostgres, HistoryBackendClickHouse:
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND %q", c.History.Backend)
	}

	if c.Cron.MinBatchSize < 1 {
		return fmt.Errorf("CRON_MIN_BATCH_SIZE must be at least 1, got %d", c.Cron.MinBatchSize)
	}
	if c.Cron.MaxBatchSize < c.Cron.MinBatchSize {
		return fmt.Errorf("CRON_MAX_BATCH_SIZE (%d) must not be below CRON_MIN_BATCH_SIZE (%d)",
			c.Cron.MaxBatchSize, c.Cron.MinBatchSize)
	}
	if c.Cron.TargetExecutionMs <= 0 {
		return fmt.Errorf("CRON_TARGET_EXECUTION_MS must be positive")
	}
	if c.Cron.BatchFraction <= 0 || c.Cron.BatchFraction > 1 {
		return fmt.Errorf("CRON_BATCH_FRACTION must be in (0, 1], got %v", c.Cron.BatchFraction)
	}
	if c.PriceProvider.PageSize <= 0 || c.PriceProvider.Pages <= 0 {
		return fmt.Errorf("price provider page size and page count must be positive")
	}
	if _, err := time.LoadLocation(c.Chart.Timezone); err != nil {
		return fmt.Errorf("invalid CHART_TIMEZONE %q: %w", c.Chart.Timezone, err)
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
