// Package config provides environment-aware configuration management for the gateway.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gwruntime "github.com/R3E-Network/api-gateway/internal/runtime"
	"github.com/joho/godotenv"
)

// Environment re-exports the runtime package's environment type so callers
// that only import config do not also need to import internal/runtime.
type Environment = gwruntime.Environment

const (
	Development = gwruntime.Development
	Testing     = gwruntime.Testing
	Production  = gwruntime.Production
)

// Config holds all gateway configuration, loaded once at startup and
// immutable for the process lifetime.
type Config struct {
	Env Environment

	// HTTP server
	Port    int
	TLSMode string // off | tls | mtls
	TLSCert string
	TLSKey  string

	// Durable store
	DatabaseURL      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	// Shared cache
	RedisURL string

	// Token signing
	JWTSecret       string
	JWTAlgorithm    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Rate limiting
	DefaultFailureMode string // open | closed

	// IP rules: when true, stage 3 rejects any client IP without an active
	// allow rule, in addition to the always-enforced block list.
	IPAllowlistMode bool

	// CORS
	CORSAllowedOrigins []string

	// Logging
	LogLevel  string
	LogFormat string

	// Janitor
	JanitorInterval time.Duration

	// Upstream proxy
	UpstreamTimeout time.Duration
}

// Load loads configuration based on the ENVIRONMENT environment variable,
// optionally overlaying a per-environment .env file for local development.
func Load() (*Config, error) {
	envStr := os.Getenv("ENVIRONMENT")
	if envStr == "" {
		envStr = string(Development)
	}

	env, ok := gwruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid ENVIRONMENT: %s (must be development, testing, or production)", envStr)
	}

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		// The per-environment file is optional; only warn on errors other
		// than "file not found" (e.g. parse errors).
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.Port = getIntEnv("PORT", 8080)
	c.TLSMode = strings.ToLower(getEnv("GATEWAY_TLS_MODE", "off"))
	c.TLSCert = getEnv("GATEWAY_TLS_CERT", "")
	c.TLSKey = getEnv("GATEWAY_TLS_KEY", "")

	c.DatabaseURL = getEnv("DATABASE_URL", "")
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	idleTimeout, err := time.ParseDuration(getEnv("DB_IDLE_TIMEOUT", "5m"))
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}
	c.DBIdleTimeout = idleTimeout

	c.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")

	c.JWTSecret = getEnv("JWT_SECRET", "")
	c.JWTAlgorithm = getEnv("JWT_ALGORITHM", "HS256")
	accessTTL, err := time.ParseDuration(getEnv("ACCESS_TOKEN_TTL", "15m"))
	if err != nil {
		return fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
	}
	c.AccessTokenTTL = accessTTL
	refreshTTL, err := time.ParseDuration(getEnv("REFRESH_TOKEN_TTL", "168h"))
	if err != nil {
		return fmt.Errorf("invalid REFRESH_TOKEN_TTL: %w", err)
	}
	c.RefreshTokenTTL = refreshTTL

	c.DefaultFailureMode = strings.ToLower(getEnv("DEFAULT_RATE_LIMIT_FAILURE_MODE", "open"))
	c.IPAllowlistMode = getBoolEnv("IP_ALLOWLIST_MODE", false)

	c.CORSAllowedOrigins = splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"))

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	janitorInterval, err := time.ParseDuration(getEnv("JANITOR_INTERVAL", "1m"))
	if err != nil {
		return fmt.Errorf("invalid JANITOR_INTERVAL: %w", err)
	}
	c.JanitorInterval = janitorInterval

	upstreamTimeout, err := time.ParseDuration(getEnv("UPSTREAM_TIMEOUT", "30s"))
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
	}
	c.UpstreamTimeout = upstreamTimeout

	if getBoolEnv("JWT_SECRET_INSECURE_DEFAULT", false) {
		c.JWTSecret = "development-insecure-secret-32bytes-minimum"
	}

	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

// Validate checks required values are present before the server starts
// listening. Missing required configuration is a fatal startup error, not a
// per-request fallback.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		return fmt.Errorf("JWT_SECRET is required (set JWT_SECRET_INSECURE_DEFAULT=true to use an insecure development default)")
	}
	if len(c.JWTSecret) < 32 && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}

	switch c.TLSMode {
	case "off", "tls", "mtls":
	default:
		return fmt.Errorf("invalid GATEWAY_TLS_MODE %q (expected: off|tls|mtls)", c.TLSMode)
	}
	if c.TLSMode != "off" && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("GATEWAY_TLS_CERT and GATEWAY_TLS_KEY are required when GATEWAY_TLS_MODE=%s", c.TLSMode)
	}

	switch c.DefaultFailureMode {
	case "open", "closed":
	default:
		return fmt.Errorf("invalid DEFAULT_RATE_LIMIT_FAILURE_MODE %q (expected: open|closed)", c.DefaultFailureMode)
	}

	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
