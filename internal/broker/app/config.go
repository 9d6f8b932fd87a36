package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Required: public base URL of the broker

	// Upstream identity provider the broker delegates to.
	UpstreamClientID     string // Required: broker's client id with the provider
	UpstreamClientSecret string // Optional: secret for confidential registration
	UpstreamAuthorizeURL string // Required: provider authorization endpoint
	UpstreamTokenURL     string // Required: provider token endpoint
	UpstreamWhoamiURL    string // Required: provider identity endpoint
	UpstreamTimeout      time.Duration

	StorageMode  string        // Optional: client registry mode (memory, sqlite) (default: memory)
	DatabaseFile string        // Optional: path to SQLite database file (default: ./agentgate.db)
	PendingTTL   time.Duration // Optional: lifetime of an in-flight authorization (default: 10m)
	CodeTTL      time.Duration // Optional: lifetime of a minted code (default: 5m)
	SessionTTL   time.Duration // Optional: lifetime of a serving session (default: 24h)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1m)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               os.Getenv("GATE_ISSUER"),
		UpstreamClientID:     os.Getenv("GATE_UPSTREAM_CLIENT_ID"),
		UpstreamClientSecret: os.Getenv("GATE_UPSTREAM_CLIENT_SECRET"),
		UpstreamAuthorizeURL: os.Getenv("GATE_UPSTREAM_AUTHORIZE_URL"),
		UpstreamTokenURL:     os.Getenv("GATE_UPSTREAM_TOKEN_URL"),
		UpstreamWhoamiURL:    os.Getenv("GATE_UPSTREAM_WHOAMI_URL"),
		UpstreamTimeout:      getEnvDurationOrDefault("GATE_UPSTREAM_TIMEOUT", 15*time.Second),

		StorageMode:  getEnvOrDefault("GATE_STORAGE_MODE", "memory"),
		DatabaseFile: getEnvOrDefault("GATE_DATABASE_FILE", "agentgate.db"),
		PendingTTL:   getEnvDurationOrDefault("GATE_PENDING_TTL", 10*time.Minute),
		CodeTTL:      getEnvDurationOrDefault("GATE_CODE_TTL", 5*time.Minute),
		SessionTTL:   getEnvDurationOrDefault("GATE_SESSION_TTL", 24*time.Hour),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Minute),
	}

	if cfg.Issuer == "" {
		cfg.Issuer = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	return cfg
}

// Validate reports missing required settings before the server starts.
func (c Config) Validate() error {
	switch {
	case c.UpstreamClientID == "":
		return fmt.Errorf("GATE_UPSTREAM_CLIENT_ID is required")
	case c.UpstreamAuthorizeURL == "":
		return fmt.Errorf("GATE_UPSTREAM_AUTHORIZE_URL is required")
	case c.UpstreamTokenURL == "":
		return fmt.Errorf("GATE_UPSTREAM_TOKEN_URL is required")
	case c.UpstreamWhoamiURL == "":
		return fmt.Errorf("GATE_UPSTREAM_WHOAMI_URL is required")
	}

	if c.StorageMode != "memory" && c.StorageMode != "sqlite" {
		return fmt.Errorf("GATE_STORAGE_MODE must be memory or sqlite, got %q", c.StorageMode)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
