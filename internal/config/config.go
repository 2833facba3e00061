package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	GeoBackendPostGIS = "postgis"
	GeoBackendRedis   = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Gateway  GatewayConfig
	Payment  PaymentConfig
	Rides    RidesConfig
	Events   EventsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// GatewayConfig holds payment processor credentials and transport settings.
type GatewayConfig struct {
	BaseURL         string
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	Currency        string
	Timeout         time.Duration
}

// PaymentConfig holds payment source provisioning settings.
type PaymentConfig struct {
	EncryptionKey   []byte
	Sandbox         bool
	FallbackRiderID string
}

// RidesConfig holds ride orchestration settings.
type RidesConfig struct {
	FinishClaimLease time.Duration
	GeoBackend       string
}

// EventsConfig holds signal dispatch settings.
type EventsConfig struct {
	Workers      int
	Buffer       int
	MaxAttempts  int
	KafkaBrokers []string
	TopicPrefix  string
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ridepay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getBoolEnv("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ridepay"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Gateway: GatewayConfig{
			BaseURL:         strings.TrimRight(getEnv("GATEWAY_BASE_URL", "https://sandbox.wompi.co/v1"), "/"),
			PublicKey:       getEnv("GATEWAY_PUBLIC_KEY", ""),
			PrivateKey:      getEnv("GATEWAY_PRIVATE_KEY", ""),
			IntegritySecret: getEnv("GATEWAY_INTEGRITY_SECRET", ""),
			Currency:        getEnv("GATEWAY_CURRENCY", "COP"),
			Timeout:         getDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),
		},
		Payment: PaymentConfig{
			Sandbox:         getBoolEnv("PAYMENT_SANDBOX", false),
			FallbackRiderID: getEnv("PAYMENT_FALLBACK_RIDER_ID", ""),
		},
		Rides: RidesConfig{
			FinishClaimLease: getDurationEnv("FINISH_CLAIM_LEASE", 2*time.Minute),
			GeoBackend:       strings.ToLower(getEnv("GEO_BACKEND", GeoBackendPostGIS)),
		},
		Events: EventsConfig{
			Workers:      getIntEnv("EVENTS_WORKERS", 4),
			Buffer:       getIntEnv("EVENTS_BUFFER", 256),
			MaxAttempts:  getIntEnv("EVENTS_MAX_ATTEMPTS", 5),
			KafkaBrokers: getListEnv("KAFKA_BROKERS"),
			TopicPrefix:  getEnv("KAFKA_TOPIC_PREFIX", "ridepay"),
		},
	}

	key, err := hex.DecodeString(getEnv("ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY: must be hex encoded: %w", err)
	}
	cfg.Payment.EncryptionKey = key

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It returns every violation joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Gateway.PublicKey == "" {
		errs = append(errs, errors.New("GATEWAY_PUBLIC_KEY is required"))
	}
	if c.Gateway.PrivateKey == "" {
		errs = append(errs, errors.New("GATEWAY_PRIVATE_KEY is required"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	if len(c.Payment.EncryptionKey) != 32 {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes, got %d", len(c.Payment.EncryptionKey)))
	}
	if c.Payment.FallbackRiderID != "" && c.IsProduction() {
		errs = append(errs, errors.New("PAYMENT_FALLBACK_RIDER_ID is not allowed in production"))
	}
	if c.Rides.FinishClaimLease <= c.Gateway.Timeout {
		errs = append(errs, fmt.Errorf("FINISH_CLAIM_LEASE (%s) must exceed GATEWAY_TIMEOUT (%s)",
			c.Rides.FinishClaimLease, c.Gateway.Timeout))
	}
	switch c.Rides.GeoBackend {
	case GeoBackendPostGIS, GeoBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("GEO_BACKEND must be %q or %q, got %q",
			GeoBackendPostGIS, GeoBackendRedis, c.Rides.GeoBackend))
	}
	if c.Events.Workers < 1 {
		errs = append(errs, errors.New("EVENTS_WORKERS must be at least 1"))
	}
	if c.Events.MaxAttempts < 1 {
		errs = append(errs, errors.New("EVENTS_MAX_ATTEMPTS must be at least 1"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
