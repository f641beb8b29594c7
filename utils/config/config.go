// Package config handles environment-based configuration for Vigil.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config represents the complete Vigil configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Docker    DockerConfig
	Session   SessionConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
	RateLimit RateLimitConfig
	Backend   BackendConfig
	Push      PushConfig
	Features  FeatureConfig
	Logs      LogSourceConfig
	Logging   LoggingConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string
	Port           string
	Mode           string // "debug" or "release"
	BasePath       string
	AllowedOrigins []string
	Version        string
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string
}

// DockerConfig contains Docker daemon settings.
type DockerConfig struct {
	Host string
}

// SessionConfig contains session lifetime and cookie settings.
type SessionConfig struct {
	TTL           time.Duration
	CookieName    string
	CookieSecure  bool
	SweepInterval time.Duration
}

// AuthConfig contains credential and lookup settings.
type AuthConfig struct {
	LookupTimeout time.Duration
	AdminUsername string
	AdminPassword string
}

// TelemetryConfig contains sampling and client refresh settings.
type TelemetryConfig struct {
	BroadcastInterval time.Duration
	RefreshInterval   time.Duration
	HistoryLength     int
	SecurityInterval  time.Duration
}

// RateLimitConfig contains the two fixed-window buckets.
type RateLimitConfig struct {
	Window    time.Duration
	AuthLimit int
	APILimit  int
}

// BackendConfig contains container backend call settings.
type BackendConfig struct {
	Timeout          time.Duration
	StopTimeout      time.Duration
	BatchConcurrency int
	StatsInterval    time.Duration
}

// PushConfig contains push channel settings.
type PushConfig struct {
	WriteTimeout time.Duration
	QueueSize    int
}

// FeatureConfig contains feature toggles.
type FeatureConfig struct {
	Workloads bool
	Logs      bool
	Metrics   bool
	Push      bool
}

// LogSourceConfig maps log types to files on the host.
type LogSourceConfig struct {
	SystemPath string
	AuthPath   string
	KernelPath string
	DockerPath string
	MaxLines   int
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level string
}

// Load reads configuration from environment variables with sensible defaults.
// All environment variables use the VIGIL_ prefix. When envFile is not empty
// (or VIGIL_ENV_FILE is set) the file is loaded first; variables already
// present in the environment win.
//
// Configuration variables (selection):
//   - VIGIL_SERVER_HOST (default: "0.0.0.0")
//   - VIGIL_SERVER_PORT (default: "8080")
//   - VIGIL_SERVER_MODE (default: "debug")
//   - VIGIL_DB_PATH (default: "/app/data/vigil.db" or "./vigil.db")
//   - VIGIL_SESSION_TTL (default: "24h")
//   - VIGIL_BROADCAST_INTERVAL (default: "2s")
//   - VIGIL_REFRESH_INTERVAL (default: "5s")
//   - VIGIL_RATE_LIMIT_WINDOW (default: "15m")
//   - VIGIL_RATE_LIMIT_AUTH (default: "5")
//   - VIGIL_RATE_LIMIT_API (default: "1000")
//   - VIGIL_WORKLOADS_ENABLED / VIGIL_LOGS_ENABLED (default: "true")
//
// Returns an error if validation fails.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = os.Getenv("VIGIL_ENV_FILE")
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("VIGIL_SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("VIGIL_SERVER_PORT", "8080"),
			Mode:           getEnv("VIGIL_SERVER_MODE", "debug"),
			BasePath:       getEnv("VIGIL_BASE_PATH", "/api"),
			AllowedOrigins: getEnvList("VIGIL_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			Version:        getEnv("VIGIL_VERSION", "dev"),
		},
		Database: DatabaseConfig{
			Path: getDBPath(),
		},
		Docker: DockerConfig{
			Host: getEnv("VIGIL_DOCKER_HOST", "unix:///var/run/docker.sock"),
		},
		Session: SessionConfig{
			TTL:           getEnvDuration("VIGIL_SESSION_TTL", 24*time.Hour),
			CookieName:    getEnv("VIGIL_SESSION_COOKIE", "vigil_session"),
			CookieSecure:  getEnvBool("VIGIL_SESSION_COOKIE_SECURE", false),
			SweepInterval: getEnvDuration("VIGIL_SESSION_SWEEP_INTERVAL", 10*time.Minute),
		},
		Auth: AuthConfig{
			LookupTimeout: getEnvDuration("VIGIL_AUTH_TIMEOUT", 2*time.Second),
			AdminUsername: getEnv("VIGIL_ADMIN_USERNAME", ""),
			AdminPassword: getEnv("VIGIL_ADMIN_PASSWORD", ""),
		},
		Telemetry: TelemetryConfig{
			BroadcastInterval: getEnvDuration("VIGIL_BROADCAST_INTERVAL", 2*time.Second),
			RefreshInterval:   getEnvDuration("VIGIL_REFRESH_INTERVAL", 5*time.Second),
			HistoryLength:     getEnvInt("VIGIL_HISTORY_LENGTH", 120),
			SecurityInterval:  getEnvDuration("VIGIL_SECURITY_INTERVAL", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Window:    getEnvDuration("VIGIL_RATE_LIMIT_WINDOW", 15*time.Minute),
			AuthLimit: getEnvInt("VIGIL_RATE_LIMIT_AUTH", 5),
			APILimit:  getEnvInt("VIGIL_RATE_LIMIT_API", 1000),
		},
		Backend: BackendConfig{
			Timeout:          getEnvDuration("VIGIL_BACKEND_TIMEOUT", 30*time.Second),
			StopTimeout:      getEnvDuration("VIGIL_STOP_TIMEOUT", 10*time.Second),
			BatchConcurrency: getEnvInt("VIGIL_BATCH_CONCURRENCY", 8),
			StatsInterval:    getEnvDuration("VIGIL_STATS_INTERVAL", 3*time.Second),
		},
		Push: PushConfig{
			WriteTimeout: getEnvDuration("VIGIL_PUSH_WRITE_TIMEOUT", 5*time.Second),
			QueueSize:    getEnvInt("VIGIL_PUSH_QUEUE_SIZE", 16),
		},
		Features: FeatureConfig{
			Workloads: getEnvBool("VIGIL_WORKLOADS_ENABLED", true),
			Logs:      getEnvBool("VIGIL_LOGS_ENABLED", true),
			Metrics:   getEnvBool("VIGIL_METRICS_ENABLED", true),
			Push:      getEnvBool("VIGIL_PUSH_ENABLED", true),
		},
		Logs: LogSourceConfig{
			SystemPath: getEnv("VIGIL_LOG_SYSTEM_PATH", "/var/log/syslog"),
			AuthPath:   getEnv("VIGIL_LOG_AUTH_PATH", "/var/log/auth.log"),
			KernelPath: getEnv("VIGIL_LOG_KERNEL_PATH", "/var/log/kern.log"),
			DockerPath: getEnv("VIGIL_LOG_DOCKER_PATH", "/var/log/docker.log"),
			MaxLines:   getEnvInt("VIGIL_LOG_MAX_LINES", 1000),
		},
		Logging: LoggingConfig{
			Level: getEnv("VIGIL_LOG_LEVEL", "info"),
		},
	}

	// Validate configuration
	if err := validate(cfg); err != nil {
		log.Error().Err(err).Msg("Configuration validation failed")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().
		Str("addr", cfg.Server.Host+":"+cfg.Server.Port).
		Str("mode", cfg.Server.Mode).
		Str("database", cfg.Database.Path).
		Dur("broadcast_interval", cfg.Telemetry.BroadcastInterval).
		Dur("refresh_interval", cfg.Telemetry.RefreshInterval).
		Int("auth_limit", cfg.RateLimit.AuthLimit).
		Int("api_limit", cfg.RateLimit.APILimit).
		Dur("rate_window", cfg.RateLimit.Window).
		Bool("workloads", cfg.Features.Workloads).
		Bool("logs", cfg.Features.Logs).
		Msg("Configuration loaded")

	return cfg, nil
}

// validate checks if the configuration is valid.
func validate(cfg *Config) error {
	if cfg.Server.Mode != "debug" && cfg.Server.Mode != "release" {
		return errors.New("server mode must be debug or release")
	}
	if !strings.HasPrefix(cfg.Server.BasePath, "/") {
		return errors.New("base path must start with /")
	}
	if cfg.Session.TTL < time.Minute {
		return errors.New("session TTL must be at least 1 minute")
	}
	if cfg.Session.CookieName == "" {
		return errors.New("session cookie name must not be empty")
	}
	if cfg.Telemetry.BroadcastInterval < 100*time.Millisecond {
		return errors.New("broadcast interval must be at least 100ms")
	}
	if cfg.Telemetry.RefreshInterval < 100*time.Millisecond {
		return errors.New("refresh interval must be at least 100ms")
	}
	if cfg.Telemetry.HistoryLength < 1 {
		return errors.New("history length must be at least 1")
	}
	if cfg.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	if cfg.RateLimit.AuthLimit < 1 || cfg.RateLimit.APILimit < 1 {
		return errors.New("rate limits must be at least 1")
	}
	if cfg.Backend.Timeout <= 0 || cfg.Auth.LookupTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if cfg.Backend.BatchConcurrency < 1 {
		return errors.New("batch concurrency must be at least 1")
	}
	if cfg.Push.QueueSize < 1 {
		return errors.New("push queue size must be at least 1")
	}
	if (cfg.Auth.AdminUsername == "") != (cfg.Auth.AdminPassword == "") {
		return errors.New("admin username and password must be set together")
	}

	return nil
}

// getDBPath determines the database path based on environment and filesystem.
// Priority:
//  1. VIGIL_DB_PATH environment variable
//  2. /app/data/vigil.db (if /app/data exists - Docker container)
//  3. ./vigil.db (development fallback)
func getDBPath() string {
	if path := os.Getenv("VIGIL_DB_PATH"); path != "" {
		return path
	}

	if _, err := os.Stat("/app/data"); err == nil {
		return "/app/data/vigil.db"
	}

	return "./vigil.db"
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvInt retrieves an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Str("value", value).Int("default", defaultValue).Msg("Invalid integer value, using default")
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Warn().Str("key", key).Str("value", value).Bool("default", defaultValue).Msg("Invalid boolean value, using default")
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a default value.
// Accepts values like "30s", "5m", "1h"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).Msg("Invalid duration value, using default")
	}
	return defaultValue
}
