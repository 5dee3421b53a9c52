// Package config handles application configuration and environment loading.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const devJWTSecret = "dev-secret-change-in-production"

// Config holds the configuration for the HTTP API, the database and the
// lending rules.
type Config struct {
	DatabaseDriver string // postgres or sqlite3 (default sqlite3)
	DatabaseURL    string // DSN, or a file path for sqlite3 (default "libradesk.db")
	Port           int    // HTTP port (default 8080)
	LogLevel       string // debug, info, warn, error (default "info")
	Env            string // "development" (default) or "production"

	JWTSecret          string
	TokenTTL           time.Duration // default 12h
	LoginRatePerMinute int           // default 5

	LoanPeriodDays  int             // default 14
	FineDailyRate   decimal.Decimal // default 1.00
	DefaultMaxBooks int             // default 5

	// ReconcileSchedule is a cron spec; empty disables the reconciler.
	ReconcileSchedule string
	OTLPEndpoint      string // empty disables trace export

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second per client (default 20)
	RateLimitBurst int     // burst capacity (default 40)

	CORSAllowedOrigins []string // default ["*"]

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// ListenAddr is the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoadDotEnv loads a .env file into the environment. Variables already set
// take precedence and a missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables, applies
// defaults and validates the result.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseDriver:    os.Getenv("DATABASE_DRIVER"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Env:               os.Getenv("ENV"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ReconcileSchedule: strings.TrimSpace(os.Getenv("RECONCILE_SCHEDULE")),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var errs []error
	intVar := func(key string, dst *int, def int) {
		*dst = def
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	intVar("PORT", &cfg.Port, 8080)
	intVar("LOAN_PERIOD_DAYS", &cfg.LoanPeriodDays, 14)
	intVar("DEFAULT_MAX_BOOKS", &cfg.DefaultMaxBooks, 5)
	intVar("RATE_LIMIT_BURST", &cfg.RateLimitBurst, 40)
	intVar("LOGIN_RATE_PER_MINUTE", &cfg.LoginRatePerMinute, 5)

	cfg.TokenTTL = 12 * time.Hour
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TOKEN_TTL: %w", err))
		} else {
			cfg.TokenTTL = d
		}
	}

	cfg.FineDailyRate = decimal.RequireFromString("1.00")
	if v := os.Getenv("FINE_DAILY_RATE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FINE_DAILY_RATE: %q is not a decimal", v))
		} else {
			cfg.FineDailyRate = d
		}
	}

	cfg.RateLimitRPS = 20
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %q is not a number", v))
		} else {
			cfg.RateLimitRPS = f
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "sqlite3"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "libradesk.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		cfg.JWTSecret = devJWTSecret
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set, using an insecure development secret")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite3, got %q", c.DatabaseDriver))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.LoanPeriodDays <= 0 {
		errs = append(errs, fmt.Errorf("LOAN_PERIOD_DAYS must be positive, got %d", c.LoanPeriodDays))
	}
	if !c.FineDailyRate.IsPositive() {
		errs = append(errs, fmt.Errorf("FINE_DAILY_RATE must be positive, got %s", c.FineDailyRate))
	}
	if c.DefaultMaxBooks < 1 || c.DefaultMaxBooks > 20 {
		errs = append(errs, fmt.Errorf("DEFAULT_MAX_BOOKS must be between 1 and 20, got %d", c.DefaultMaxBooks))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.LoginRatePerMinute <= 0 {
		errs = append(errs, fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive, got %d", c.LoginRatePerMinute))
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Errorf("RECONCILE_SCHEDULE: %w", err))
		}
	}

	// Production mode: insecure defaults are fatal errors.
	if c.IsProduction() {
		if c.JWTSecret == "" || c.JWTSecret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production (ENV=production)"))
		}
		if len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*" {
			errs = append(errs, errors.New("CORS wildcard (*) is not allowed in production (ENV=production)"))
		}
	}
	return errors.Join(errs...)
}
