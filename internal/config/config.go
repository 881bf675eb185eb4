package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DeliverySelection decides which candidate wins when a page carries more
// than one delivery promise. The policy is set once here and threaded to a
// single selection function; code paths never mix policies.
type DeliverySelection string

const (
	SelectEarliest DeliverySelection = "earliest"
	SelectLatest   DeliverySelection = "latest"
)

type Config struct {
	Server   ServerConfig
	Engine   EngineConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// EngineConfig tunes the availability engine. Session budgets and cooldowns
// are ranges, not constants: fixed values produce a periodic signature the
// target site can key on.
type EngineConfig struct {
	BaseURL         string
	LocationPath    string
	DefaultLocation string

	Workers    int
	MaxRetries int

	// Request pacing (per worker).
	BaseDelay   time.Duration
	DelayJitter float64

	// Session lifecycle.
	SessionBudgetMin   int
	SessionBudgetMax   int
	SessionCooldownMin time.Duration
	SessionCooldownMax time.Duration

	// Retry backoff.
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	RateLimitCooldown time.Duration

	// Block detection.
	MinBodyBytes int

	// Extraction.
	DeliverySelection DeliverySelection
	MaxDeliveryDays   int
	FastDeliveryDays  int

	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Engine: EngineConfig{
			BaseURL:         getEnvOrDefault("ENGINE_BASE_URL", "https://www.amazon.de"),
			LocationPath:    getEnvOrDefault("ENGINE_LOCATION_PATH", "/portal-migration/hz/glow/address-change"),
			DefaultLocation: getEnvOrDefault("ENGINE_DEFAULT_LOCATION", "10115"),

			Workers:    getIntOrDefault("ENGINE_WORKERS", 4),
			MaxRetries: getIntOrDefault("ENGINE_MAX_RETRIES", 3),

			BaseDelay:   getDurationOrDefault("ENGINE_BASE_DELAY", 4*time.Second),
			DelayJitter: getFloatOrDefault("ENGINE_DELAY_JITTER", 0.5),

			SessionBudgetMin:   getIntOrDefault("ENGINE_SESSION_BUDGET_MIN", 25),
			SessionBudgetMax:   getIntOrDefault("ENGINE_SESSION_BUDGET_MAX", 40),
			SessionCooldownMin: getDurationOrDefault("ENGINE_SESSION_COOLDOWN_MIN", 30*time.Second),
			SessionCooldownMax: getDurationOrDefault("ENGINE_SESSION_COOLDOWN_MAX", 90*time.Second),

			InitialBackoff:    getDurationOrDefault("ENGINE_INITIAL_BACKOFF", 5*time.Second),
			BackoffMultiplier: getFloatOrDefault("ENGINE_BACKOFF_MULTIPLIER", 2.0),
			MaxBackoff:        getDurationOrDefault("ENGINE_MAX_BACKOFF", 2*time.Minute),
			RateLimitCooldown: getDurationOrDefault("ENGINE_RATE_LIMIT_COOLDOWN", 20*time.Second),

			MinBodyBytes: getIntOrDefault("ENGINE_MIN_BODY_BYTES", 5000),

			DeliverySelection: DeliverySelection(getEnvOrDefault("DELIVERY_SELECTION", string(SelectEarliest))),
			MaxDeliveryDays:   getIntOrDefault("ENGINE_MAX_DELIVERY_DAYS", 30),
			FastDeliveryDays:  getIntOrDefault("ENGINE_FAST_DELIVERY_DAYS", 1),

			RequestTimeout: getDurationOrDefault("ENGINE_REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "resale_sync"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			CacheTTL: getDurationOrDefault("REDIS_CACHE_TTL", 15*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	e := &c.Engine

	if e.Workers < 1 {
		return fmt.Errorf("ENGINE_WORKERS must be at least 1")
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("ENGINE_MAX_RETRIES cannot be negative")
	}
	if e.SessionBudgetMin < 1 || e.SessionBudgetMax < e.SessionBudgetMin {
		return fmt.Errorf("session budget range [%d, %d] is invalid", e.SessionBudgetMin, e.SessionBudgetMax)
	}
	if e.SessionCooldownMax < e.SessionCooldownMin {
		return fmt.Errorf("ENGINE_SESSION_COOLDOWN_MIN cannot be greater than ENGINE_SESSION_COOLDOWN_MAX")
	}
	if e.DelayJitter < 0 || e.DelayJitter > 1 {
		return fmt.Errorf("ENGINE_DELAY_JITTER must be within [0, 1]")
	}
	if e.BackoffMultiplier < 1 {
		return fmt.Errorf("ENGINE_BACKOFF_MULTIPLIER must be at least 1")
	}
	if e.DeliverySelection != SelectEarliest && e.DeliverySelection != SelectLatest {
		return fmt.Errorf("DELIVERY_SELECTION must be %q or %q", SelectEarliest, SelectLatest)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
