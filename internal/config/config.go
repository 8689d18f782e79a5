package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment variable the service reads, grouped by
// subsystem. Each field documents its variable name and default so the
// whole env schema lives in one place.
type Config struct {
	Core     CoreConfig
	Security SecurityConfig
	Billing  BillingConfig
	Worker   WorkerConfig
}

// CoreConfig - runtime basics.
type CoreConfig struct {
	Addr        string // BT_ADDR (default ":8080")
	DatabaseDSN string // DB_DSN_PRIMARY (required)
	Environment string // BT_ENV (default "development")
	LogLevel    string // BT_LOG_LEVEL (default "info")
}

// SecurityConfig - auth and abuse protection.
type SecurityConfig struct {
	JWTSecret       string        // BT_JWT_SECRET (required outside development)
	TokenTTL        time.Duration // BT_TOKEN_TTL_HOURS (default 72h)
	RateLimitPerSec int           // BT_RATE_LIMIT_RPS (default 10)
	RateLimitBurst  int           // BT_RATE_LIMIT_BURST (default 20)
	AllowedOrigin   string        // BT_CORS_ORIGIN (default "http://localhost:5173")
}

// BillingConfig - webhook verification only; we never call the providers.
type BillingConfig struct {
	WebhookSecret string // BT_BILLING_WEBHOOK_SECRET (empty disables signature check)
	TrialDays     int    // BT_TRIAL_DAYS (default 14)
}

// WorkerConfig - background sweep schedules (cron specs).
type WorkerConfig struct {
	StuckBatchSpec   string        // BT_SWEEP_STUCK_BATCHES (default "@hourly")
	SubsExpirySpec   string        // BT_SWEEP_SUBSCRIPTIONS (default "30 3 * * *")
	StuckBatchMaxAge time.Duration // BT_STUCK_BATCH_HOURS (default 72h)
}

// Load builds a Config from the environment. Callers should run
// godotenv.Load() first (main does). It only errors on hard requirements;
// everything else falls back to a documented default.
func Load() (*Config, error) {
	cfg := &Config{
		Core: CoreConfig{
			Addr:        getEnv("BT_ADDR", ":8080"),
			DatabaseDSN: os.Getenv("DB_DSN_PRIMARY"),
			Environment: getEnv("BT_ENV", "development"),
			LogLevel:    getEnv("BT_LOG_LEVEL", "info"),
		},
		Security: SecurityConfig{
			JWTSecret:       os.Getenv("BT_JWT_SECRET"),
			TokenTTL:        time.Duration(getEnvInt("BT_TOKEN_TTL_HOURS", 72)) * time.Hour,
			RateLimitPerSec: getEnvInt("BT_RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getEnvInt("BT_RATE_LIMIT_BURST", 20),
			AllowedOrigin:   getEnv("BT_CORS_ORIGIN", "http://localhost:5173"),
		},
		Billing: BillingConfig{
			WebhookSecret: os.Getenv("BT_BILLING_WEBHOOK_SECRET"),
			TrialDays:     getEnvInt("BT_TRIAL_DAYS", 14),
		},
		Worker: WorkerConfig{
			StuckBatchSpec:   getEnv("BT_SWEEP_STUCK_BATCHES", "@hourly"),
			SubsExpirySpec:   getEnv("BT_SWEEP_SUBSCRIPTIONS", "30 3 * * *"),
			StuckBatchMaxAge: time.Duration(getEnvInt("BT_STUCK_BATCH_HOURS", 72)) * time.Hour,
		},
	}

	if cfg.Core.DatabaseDSN == "" {
		return nil, fmt.Errorf("DB_DSN_PRIMARY is not set")
	}

	// A missing JWT secret is only tolerable on a developer laptop.
	if cfg.Security.JWTSecret == "" {
		if cfg.Core.Environment != "development" {
			return nil, fmt.Errorf("BT_JWT_SECRET is required when BT_ENV=%s", cfg.Core.Environment)
		}
		cfg.Security.JWTSecret = "dev-only-insecure-secret"
	}

	return cfg, nil
}

// getEnv reads a variable with a fallback default.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt reads an integer variable, falling back on missing OR unparsable.
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
