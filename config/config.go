package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendPocketBase = "pocketbase"
	BackendRedis      = "redis"
	BackendSQL        = "sql"
	BackendMemory     = "memory"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Storage
	StoreBackend string
	DatabaseURL  string
	RedisURL     string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Sale registration
	MaxCodeAttempts       int
	MaxAllocationAttempts int
	DefaultPaymentMethod  string

	// Purchase rate limiting
	PurchaseRateLimit  int
	PurchaseRateWindow time.Duration

	// Monitoring
	EnableMetrics  bool
	MetricsPort    string
	MetricsRefresh time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// LoadConfig reads the configuration from the environment. When CONFIG_FILE
// names a YAML file its values are used for keys the environment leaves unset.
func LoadConfig() *Config {
	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			slog.Warn("Ignoring config file", "path", path, "error", err)
		} else {
			src.file = file
		}
	}
	return src.load()
}

func (s source) load() *Config {
	cfg := &Config{
		// Server
		Port:        s.getEnv("PORT", "8090"),
		Environment: s.getEnv("ENVIRONMENT", "development"),

		// Storage
		StoreBackend: strings.ToLower(s.getEnv("STORE_BACKEND", BackendPocketBase)),
		DatabaseURL:  s.getEnv("DATABASE_URL", "postgres://localhost:5432/raffles?sslmode=disable"),
		RedisURL:     s.getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   s.getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: s.getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    s.getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       s.getEnv("PUBNUB_USER_ID", "raffle-server"),

		// Sales
		MaxCodeAttempts:       s.getEnvAsInt("MAX_CODE_ATTEMPTS", 50),
		MaxAllocationAttempts: s.getEnvAsInt("MAX_ALLOCATION_ATTEMPTS", 5),
		DefaultPaymentMethod:  s.getEnv("DEFAULT_PAYMENT_METHOD", "WhatsApp"),

		// Rate limiting
		PurchaseRateLimit:  s.getEnvAsInt("PURCHASE_RATE_LIMIT", 120),
		PurchaseRateWindow: s.getEnvAsDuration("PURCHASE_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics:  s.getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:    s.getEnv("METRICS_PORT", "9090"),
		MetricsRefresh: s.getEnvAsDuration("METRICS_REFRESH", "30s"),

		// Logging
		LogLevel: s.getEnv("LOG_LEVEL", "info"),
		LogFile:  s.getEnv("LOG_FILE", ""),
	}

	if cfg.MaxCodeAttempts < 1 {
		cfg.MaxCodeAttempts = 50
	}
	if cfg.MaxAllocationAttempts < 1 {
		cfg.MaxAllocationAttempts = 5
	}
	if cfg.PurchaseRateLimit < 1 {
		cfg.PurchaseRateLimit = 120
	}
	if cfg.PurchaseRateWindow <= 0 {
		cfg.PurchaseRateWindow = time.Minute
	}
	if cfg.MetricsRefresh <= 0 {
		cfg.MetricsRefresh = 30 * time.Second
	}
	return cfg
}

// PubNubEnabled reports whether realtime notifications are configured.
func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

// readFile loads a flat YAML mapping. Keys are matched case-insensitively
// against the environment variable names, so "max_code_attempts: 20" sets
// MAX_CODE_ATTEMPTS.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return values, nil
}

func (s source) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s source) getEnvAsInt(key string, defaultValue int) int {
	valueStr := s.getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func (s source) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := s.getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func (s source) getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := s.getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
