// Package config loads runtime configuration from the environment. A .env
// file is honored when present so local development does not need exported
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	TTN      TTNConfig
	SMS      SMSConfig
	Email    EmailConfig
	Billing  BillingConfig
	Logging  LoggingConfig
	Monitor  MonitorConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	RateLimitPerSec int
	RateLimitBurst  int
	AuditLogPath    string
}

// DatabaseConfig controls the postgres connection. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// RedisConfig controls the optional cache. An empty address disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig controls API token verification.
type AuthConfig struct {
	JWTSecret string
}

// TTNConfig controls the device provisioning client.
type TTNConfig struct {
	BaseURL       string
	ApplicationID string
	APIKey        string
	WebhookSecret string
}

// SMSConfig controls the SMS provider.
type SMSConfig struct {
	APIKey     string
	FromNumber string
	BaseURL    string
}

// EmailConfig controls the email provider.
type EmailConfig struct {
	APIKey      string
	FromAddress string
	BaseURL     string
}

// BillingConfig controls payment webhook verification and the plan catalog.
type BillingConfig struct {
	WebhookSecret string
	PlansPath     string
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MonitorConfig controls the background evaluation loops.
type MonitorConfig struct {
	Interval          time.Duration
	DispatchInterval  time.Duration
	ProvisionInterval time.Duration
}

// Load reads configuration from the environment, loading a .env file first
// when one exists.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvList("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitPerSec: getEnvInt("SERVER_RATE_LIMIT", 50),
			RateLimitBurst:  getEnvInt("SERVER_RATE_BURST", 100),
			AuditLogPath:    getEnv("SERVER_AUDIT_LOG", ""),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", ""),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			MigrationsPath:  getEnv("DATABASE_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		TTN: TTNConfig{
			BaseURL:       getEnv("TTN_BASE_URL", "https://eu1.cloud.thethings.network"),
			ApplicationID: getEnv("TTN_APPLICATION_ID", ""),
			APIKey:        getEnv("TTN_API_KEY", ""),
			WebhookSecret: getEnv("TTN_WEBHOOK_SECRET", ""),
		},
		SMS: SMSConfig{
			APIKey:     getEnv("SMS_API_KEY", ""),
			FromNumber: getEnv("SMS_FROM_NUMBER", ""),
			BaseURL:    getEnv("SMS_BASE_URL", ""),
		},
		Email: EmailConfig{
			APIKey:      getEnv("EMAIL_API_KEY", ""),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "alerts@frostguard.io"),
			BaseURL:     getEnv("EMAIL_BASE_URL", ""),
		},
		Billing: BillingConfig{
			WebhookSecret: getEnv("BILLING_WEBHOOK_SECRET", ""),
			PlansPath:     getEnv("BILLING_PLANS_PATH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Monitor: MonitorConfig{
			Interval:          getEnvDuration("MONITOR_INTERVAL", time.Minute),
			DispatchInterval:  getEnvDuration("DISPATCH_INTERVAL", 15*time.Second),
			ProvisionInterval: getEnvDuration("PROVISION_INTERVAL", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
