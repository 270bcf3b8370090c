package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backend selectors.
const (
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	// Deployment
	AppEnv string // "dev" enables the bootstrap admin

	// Server
	ServerAddr string
	ServerPort int

	// Store
	StoreBackend string
	DBHost       string
	DBPort       int
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	BoltPath     string

	// Access tokens
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration

	// Sessions
	SessionTTL       time.Duration
	RotationInterval time.Duration
	SweepInterval    time.Duration // 0 disables the housekeeping sweep
	SessionRetention time.Duration
	CookieSecure     bool

	// Lockout policy
	LoginMaxFailures int
	LoginCooldown    time.Duration

	// IP-level throttling
	RateLimit RateLimitConfig
}

// RateLimitConfig holds IP-level request throttling settings.
type RateLimitConfig struct {
	Enabled bool

	AuthRequestsPerWindow     int
	AuthWindow                time.Duration
	RecoveryRequestsPerWindow int
	RecoveryWindow            time.Duration
	RefreshRequestsPerWindow  int
	RefreshWindow             time.Duration
}

// IsDev reports whether the deployment runs in development mode.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "dev"),

		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		StoreBackend: getEnv("STORE_BACKEND", BackendBolt),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnvInt("DB_PORT", 5432),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBName:       getEnv("DB_NAME", "driverauth"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		BoltPath:     getEnv("BOLT_PATH", "driverauth.db"),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "driverauth"),
		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),

		SessionTTL:       getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		RotationInterval: getEnvDuration("SESSION_ROTATION_INTERVAL", 24*time.Hour),
		SweepInterval:    getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		SessionRetention: getEnvDuration("SESSION_RETENTION", 30*24*time.Hour),
		CookieSecure:     getEnvBool("COOKIE_SECURE", false),

		LoginMaxFailures: getEnvInt("LOGIN_MAX_FAILURES", 5),
		LoginCooldown:    getEnvDuration("LOGIN_COOLDOWN", 15*time.Minute),

		RateLimit: RateLimitConfig{
			Enabled:                   getEnvBool("RATE_LIMIT_ENABLED", true),
			AuthRequestsPerWindow:     getEnvInt("RATE_LIMIT_AUTH_REQUESTS", 10),
			AuthWindow:                getEnvDuration("RATE_LIMIT_AUTH_WINDOW", time.Minute),
			RecoveryRequestsPerWindow: getEnvInt("RATE_LIMIT_RECOVERY_REQUESTS", 5),
			RecoveryWindow:            getEnvDuration("RATE_LIMIT_RECOVERY_WINDOW", 15*time.Minute),
			RefreshRequestsPerWindow:  getEnvInt("RATE_LIMIT_REFRESH_REQUESTS", 30),
			RefreshWindow:             getEnvDuration("RATE_LIMIT_REFRESH_WINDOW", time.Minute),
		},
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.StoreBackend {
	case BackendPostgres, BackendBolt, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
