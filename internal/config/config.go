// Package config loads application settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Storage backends for the local listing collection.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// MinImportIntervalMinutes is the smallest allowed feed import interval.
const MinImportIntervalMinutes = 15

// Config holds all configuration values.
type Config struct {
	Addr     string `mapstructure:"ADDR"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Local persistence.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	SQLitePath   string `mapstructure:"SQLITE_PATH"`
	StorageKey   string `mapstructure:"STORAGE_KEY"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Remote data source. Setting it switches off local persistence.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Stripe payments, optional.
	StripeSecretKey      string `mapstructure:"STRIPE_SECRET_KEY"`
	StripePublishableKey string `mapstructure:"STRIPE_PUBLISHABLE_KEY"`
	PaymentCurrency      string `mapstructure:"PAYMENT_CURRENCY"`

	FeaturedCount         int    `mapstructure:"FEATURED_COUNT"`
	ImportFeeds           string `mapstructure:"IMPORT_FEEDS"`
	ImportIntervalMinutes int    `mapstructure:"IMPORT_INTERVAL_MINUTES"`
	RateLimitPerMinute    int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	CORSOrigins           string `mapstructure:"CORS_ORIGINS"`
	ImportToken           string `mapstructure:"IMPORT_TOKEN"`
	TrustProxy            bool   `mapstructure:"TRUST_PROXY"`
}

var defaults = map[string]any{
	"ADDR":                    ":8080",
	"ENV":                     "development",
	"LOG_LEVEL":               "info",
	"STORE_BACKEND":           BackendSQLite,
	"SQLITE_PATH":             "grainotheque.db",
	"STORAGE_KEY":             "grainotheque_listings_v2",
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_PASSWORD":          "",
	"REDIS_DB":                0,
	"DATABASE_URL":            "",
	"STRIPE_SECRET_KEY":       "",
	"STRIPE_PUBLISHABLE_KEY":  "",
	"PAYMENT_CURRENCY":        "eur",
	"FEATURED_COUNT":          6,
	"IMPORT_FEEDS":            "",
	"IMPORT_INTERVAL_MINUTES": 60,
	"RATE_LIMIT_PER_MINUTE":   60,
	"CORS_ORIGINS":            "*",
	"IMPORT_TOKEN":            "",
	"TRUST_PROXY":             false,
}

// Load reads config.yaml from dir (if present), then the environment,
// which wins.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.FeaturedCount <= 0 {
		c.FeaturedCount = 6
	}
	if c.ImportIntervalMinutes < MinImportIntervalMinutes {
		c.ImportIntervalMinutes = MinImportIntervalMinutes
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 60
	}
	return nil
}

// IsProduction reports whether ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Remote reports whether the remote data source is configured.
func (c *Config) Remote() bool {
	return c.DatabaseURL != ""
}

// PaymentsEnabled reports whether Stripe keys are present.
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != "" && c.StripePublishableKey != ""
}

// Feeds returns the configured import feed URLs.
func (c *Config) Feeds() []string {
	return splitList(c.ImportFeeds)
}

// AllowedOrigins returns the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
