package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// HTTP API
	HTTP HTTPConfig

	// Scheduler (state sweep worker)
	Scheduler SchedulerConfig

	// Event bus
	EventBus EventBusConfig

	// Feature toggles
	Features *FeatureFlags
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Full connection URL. Takes precedence over the individual fields.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig holds Redis connection settings.
// Redis is optional: with Enabled=false the service runs without the
// snapshot cache and the sweep worker runs without a distributed lock.
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// TTL for cached snapshots served by the read side
	SnapshotCacheTTL time.Duration
}

// SchedulerConfig holds settings for the state sweep worker.
type SchedulerConfig struct {
	SweepInterval time.Duration
	SweepBatch    int
	SweepTimeout  time.Duration
	LockTTL       time.Duration

	// ReportHour is the UTC hour (0-23) of the daily operational report.
	ReportHour int
}

// EventBusConfig holds settings for the in-memory event bus.
type EventBusConfig struct {
	Async          bool
	WorkerPoolSize int
	HandlerTimeout time.Duration
}

// Load reads configuration from environment variables,
// applying defaults for anything not set.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.App = loadAppConfig()

	var err error
	cfg.Database, err = loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	cfg.Redis = loadRedisConfig()
	cfg.HTTP = loadHTTPConfig()
	cfg.Scheduler = loadSchedulerConfig()
	cfg.EventBus = loadEventBusConfig()
	cfg.Features = LoadFeatureFlags()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))

	return AppConfig{
		Name:            getEnv("APP_NAME", "streak-engine"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	cfg := DatabaseConfig{
		URL:             getEnv("DATABASE_URL", ""),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		Name:            getEnv("DB_NAME", "streaks"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 10)),
		MinConns:        int32(getEnvInt("DB_MIN_CONNS", 2)),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
	}

	if cfg.URL == "" && cfg.Password == "" && os.Getenv("DB_HOST") == "" {
		// Neither a URL nor explicit host settings: the caller will
		// connect to the local default, which is fine in development
		// but almost certainly a mistake anywhere else.
		if Environment(getEnv("APP_ENV", "development")) == EnvProduction {
			return cfg, fmt.Errorf("DATABASE_URL or DB_HOST is required in production")
		}
	}

	return cfg, nil
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      getEnvBool("REDIS_ENABLED", true),
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:             getEnv("HTTP_HOST", "0.0.0.0"),
		Port:             getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:      getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:     getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:      getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:   getEnvInt("HTTP_MAX_HEADER_BYTES", 1<<20),
		SnapshotCacheTTL: getEnvDuration("HTTP_SNAPSHOT_CACHE_TTL", 30*time.Second),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		SweepBatch:    getEnvInt("SWEEP_BATCH_SIZE", 500),
		SweepTimeout:  getEnvDuration("SWEEP_TIMEOUT", 5*time.Minute),
		LockTTL:       getEnvDuration("SWEEP_LOCK_TTL", 5*time.Minute),
		ReportHour:    getEnvInt("DAILY_REPORT_HOUR", 3),
	}
}

func loadEventBusConfig() EventBusConfig {
	return EventBusConfig{
		Async:          getEnvBool("EVENTBUS_ASYNC", true),
		WorkerPoolSize: getEnvInt("EVENTBUS_WORKERS", 10),
		HandlerTimeout: getEnvDuration("EVENTBUS_HANDLER_TIMEOUT", 10*time.Second),
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Environment == EnvProduction && c.Database.URL == "" && c.Database.Password == "" {
		errs = append(errs, "DATABASE_URL or DB_PASSWORD is required in production")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}

	if c.Scheduler.SweepInterval < time.Minute {
		errs = append(errs, "SWEEP_INTERVAL must be at least 1m")
	}

	if c.Scheduler.SweepBatch < 1 {
		errs = append(errs, "SWEEP_BATCH_SIZE must be positive")
	}

	if c.Scheduler.ReportHour < 0 || c.Scheduler.ReportHour > 23 {
		errs = append(errs, "DAILY_REPORT_HOUR must be 0-23")
	}

	if c.EventBus.WorkerPoolSize < 1 {
		errs = append(errs, "EVENTBUS_WORKERS must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// DatabaseDSN builds a connection string from the individual fields.
// Prefer URL when set.
func (c *Config) DatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.SSLMode)
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
