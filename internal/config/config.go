package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // containers ship without a zoneinfo database

	"github.com/spf13/viper"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	// Server
	Port           int    `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"` // development | production
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	WorkerPoolSize int    `mapstructure:"WORKER_POOL_SIZE"`

	// DLQRedriveInterval moves dead-lettered alerts back to their queue; 0 disables.
	DLQRedriveInterval time.Duration `mapstructure:"DLQ_REDRIVE_INTERVAL"`

	// REST backend (sales aggregator + closure store)
	BackendURL     string        `mapstructure:"BACKEND_URL"`
	BackendTimeout time.Duration `mapstructure:"BACKEND_TIMEOUT"`

	// Redis
	RedisURL string        `mapstructure:"REDIS_URL"`
	DraftTTL time.Duration `mapstructure:"DRAFT_TTL"`

	// Auth
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Business
	BusinessTimezone        string `mapstructure:"BUSINESS_TIMEZONE"`
	RequireDiscrepancyNotes bool   `mapstructure:"REQUIRE_DISCREPANCY_NOTES"`

	// SMTP
	SMTPHost        string `mapstructure:"SMTP_HOST"`
	SMTPPort        int    `mapstructure:"SMTP_PORT"`
	SMTPUser        string `mapstructure:"SMTP_USER"`
	SMTPPassword    string `mapstructure:"SMTP_PASSWORD"`
	AlertRecipients string `mapstructure:"ALERT_RECIPIENTS"` // comma separated
}

// Load reads configuration from environment variables (and optional .env file).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	// Optional .env file for local development, ignored when missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Every key needs a default: viper only unmarshals keys it knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8000)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WORKER_POOL_SIZE", 2)
	v.SetDefault("DLQ_REDRIVE_INTERVAL", "15m")
	v.SetDefault("BACKEND_URL", "http://localhost:8080/api")
	v.SetDefault("BACKEND_TIMEOUT", "10s")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("DRAFT_TTL", "24h")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("BUSINESS_TIMEZONE", "America/Bogota")
	v.SetDefault("REQUIRE_DISCREPANCY_NOTES", false)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("ALERT_RECIPIENTS", "")
}

func (c *Config) validate() error {
	if c.JWTSecret == "" && c.IsProduction() {
		return errors.New("config: JWT_SECRET is required in production")
	}
	if c.BackendURL == "" {
		return errors.New("config: BACKEND_URL is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// Location resolves BUSINESS_TIMEZONE. Shift dates are computed in it.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: BUSINESS_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Recipients splits ALERT_RECIPIENTS. Empty means alerts are not mailed.
func (c *Config) Recipients() []string {
	var out []string
	for _, r := range strings.Split(c.AlertRecipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// SMTPEnabled is false when no SMTP host is configured.
func (c *Config) SMTPEnabled() bool { return c.SMTPHost != "" }
