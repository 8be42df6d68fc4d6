package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"consultacnpj/internal/validation"
)

// ErrMissingAPIKey is returned by Validate when no provider credential is set.
var ErrMissingAPIKey = errors.New("CNPJA_API_KEY is required")

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Environment
	Env string // "development", "production", etc.

	// Server
	ServerAddr string
	BaseURL    string

	// Database
	DatabaseURL string

	// Shared counter/cache store; empty uses an in-process store
	RedisURL string

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	// Session
	SessionSecret string // Used for signing cookies (min 32 chars)

	// CORS
	CORSOrigins string // Comma-separated allowed origins

	// Provider
	CNPJAAPIKey          string
	CNPJABaseURL         string
	CNPJAStrategy        string
	CNPJAMaxAgeDays      int
	CNPJAMaxStaleDays    int
	CNPJACacheProbe      bool
	CNPJATimeout         time.Duration
	CNPJARateLimitPerMin int

	// Lookup policy
	LookupRetryCount int
	LookupRetryWait  time.Duration
	LookupCacheTTL   time.Duration

	// Jobs
	StepDelay      time.Duration // minimum interval between steps of one job
	CreditsRefresh time.Duration

	// Uploads
	UploadMaxBytes int

	// Optional YAML overrides
	ConfigFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Env:              getEnv("ENV", "development"),
		ServerAddr:       getEnv("SERVER_ADDR", ":3000"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:3000"),
		DatabaseURL:      getEnv("DATABASE_URL", "postgres://localhost:5432/consultacnpj?sslmode=disable"),
		RedisURL:         getEnv("REDIS_URL", ""),
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("OIDC_REDIRECT_URL", "http://localhost:3000/auth/callback"),
		SessionSecret:    getEnv("SESSION_SECRET", "change-me-in-production-min-32-chars"),
		CORSOrigins:      getEnv("CORS_ORIGINS", ""),

		CNPJAAPIKey:          strings.TrimSpace(getEnv("CNPJA_API_KEY", "")),
		CNPJABaseURL:         getEnv("CNPJA_BASE_URL", "https://api.cnpja.com"),
		CNPJAStrategy:        getEnv("CNPJA_STRATEGY", "CACHE_IF_FRESH"),
		CNPJAMaxAgeDays:      getEnvInt("CNPJA_MAX_AGE_DAYS", 14),
		CNPJAMaxStaleDays:    getEnvInt("CNPJA_MAX_STALE_DAYS", 30),
		CNPJACacheProbe:      getEnvBool("CNPJA_CACHE_PROBE", true),
		CNPJATimeout:         time.Duration(getEnvInt("CNPJA_TIMEOUT_SECONDS", 30)) * time.Second,
		CNPJARateLimitPerMin: getEnvInt("CNPJA_RATE_LIMIT_PER_MINUTE", 60),

		LookupRetryCount: getEnvInt("LOOKUP_RETRY_COUNT", 3),
		LookupRetryWait:  time.Duration(getEnvInt("LOOKUP_RETRY_WAIT_SECONDS", 20)) * time.Second,
		LookupCacheTTL:   time.Duration(getEnvInt("LOOKUP_CACHE_TTL_HOURS", 24)) * time.Hour,

		StepDelay:      time.Duration(getEnvInt("STEP_DELAY_MS", 1000)) * time.Millisecond,
		CreditsRefresh: time.Duration(getEnvInt("CREDITS_REFRESH_MINUTES", 60)) * time.Minute,

		UploadMaxBytes: getEnvInt("UPLOAD_MAX_BYTES", 10<<20),

		ConfigFile: getEnv("CONFIG_FILE", "config.yaml"),
	}
}

// Validate reports configuration that prevents the service from working.
func (c *Config) Validate() error {
	if c.CNPJAAPIKey == "" {
		return ErrMissingAPIKey
	}
	if ok, msg := validation.ValidateURL(c.CNPJABaseURL); !ok {
		return fmt.Errorf("CNPJA_BASE_URL: %s", msg)
	}
	if c.OIDCEnabled() {
		if ok, msg := validation.ValidateURL(c.OIDCIssuer); !ok {
			return fmt.Errorf("OIDC_ISSUER: %s", msg)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return b
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// OIDCEnabled returns true when an OIDC issuer is configured.
func (c *Config) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

// MaskedAPIKey returns the provider key with all but the last four
// characters hidden, for logging.
func (c *Config) MaskedAPIKey() string {
	k := c.CNPJAAPIKey
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}
