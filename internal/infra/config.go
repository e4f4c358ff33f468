package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment
// variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// Generation backend.
	GenAPIBaseURL string
	GenAPIKey     string
	ProjectID     string

	// Polling and pacing.
	PollInterval time.Duration
	MaxAttempts  int
	AccountTier  string
	TierDelays   map[string]time.Duration
	BatchGap     time.Duration

	StoragePath   string
	GeoIPDBPath   string
	DefaultLocale string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL is optional: without it the version
// store runs in memory, which suits development and tests.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		GenAPIBaseURL: os.Getenv("GENAPI_BASE_URL"),
		GenAPIKey:     os.Getenv("GENAPI_KEY"),
		ProjectID:     os.Getenv("STUDIO_PROJECT_ID"),
		PollInterval:  time.Second * time.Duration(getEnvInt("GENAPI_POLL_INTERVAL_SECONDS", 2)),
		MaxAttempts:   getEnvInt("GENAPI_POLL_MAX_ATTEMPTS", 120),
		AccountTier:   getEnv("ACCOUNT_TIER", "standard"),
		TierDelays: map[string]time.Duration{
			"standard": time.Second * time.Duration(getEnvInt("TIER_DELAY_STANDARD_SECONDS", 5)),
			"premium":  0,
		},
		BatchGap:         time.Second * time.Duration(getEnvInt("BATCH_PACING_SECONDS", 1)),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	if cfg.GenAPIBaseURL == "" {
		return nil, fmt.Errorf("GENAPI_BASE_URL is required")
	}
	// A generation flow can hold its request open for the whole poll
	// budget; the write timeout must cover it.
	budget := time.Duration(cfg.MaxAttempts) * cfg.PollInterval
	if cfg.HTTPWriteTimeout <= budget {
		cfg.HTTPWriteTimeout = budget + 30*time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitAndTrim(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
