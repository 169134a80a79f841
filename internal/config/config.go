// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool
	DataDir  string // Base directory for the snapshot database (always absolute)

	Upstream UpstreamConfig
	Snapshot SnapshotConfig

	IndicesJitter  time.Duration // Random delay before the /api/indices fan-out
	StreamInterval time.Duration // Push interval of the indices websocket stream
}

// UpstreamConfig tunes the session handshake, retry policy and response cache.
type UpstreamConfig struct {
	BaseURL       string // e.g. https://www.nseindia.com
	ReferencePath string // Page fetched in the second handshake step

	CacheTTL   time.Duration
	SessionTTL time.Duration

	SessionRetries int           // Handshake attempts before giving up
	SessionBackoff time.Duration // Handshake backoff base (attempt * base)
	HandshakeDelay time.Duration // Pause between the two handshake steps

	FetchRetries      int // Default attempts per logical fetch
	StockFetchRetries int // Attempts for single-stock quote lookups
	RetryPacing       time.Duration
	RetryBackoff      time.Duration
	RequestTimeout    time.Duration
}

// SnapshotConfig controls persistence of last-known-good payloads.
type SnapshotConfig struct {
	Enabled         bool
	TTL             time.Duration
	CleanupSchedule     string // cron expression with seconds field
	MaintenanceSchedule string // integrity check and WAL checkpoint
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		Port:     getEnvAsInt("PORT", 5000),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		DataDir:  dataDir,
		Upstream: UpstreamConfig{
			BaseURL:           getEnv("NSE_BASE_URL", "https://www.nseindia.com"),
			ReferencePath:     getEnv("NSE_REFERENCE_PATH", "/get-quotes/equity?symbol=SBIN"),
			CacheTTL:          getEnvAsDuration("CACHE_TTL", time.Second),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", time.Second),
			SessionRetries:    getEnvAsInt("SESSION_RETRIES", 2),
			SessionBackoff:    getEnvAsDuration("SESSION_BACKOFF", time.Second),
			HandshakeDelay:    getEnvAsDuration("HANDSHAKE_DELAY", time.Second),
			FetchRetries:      getEnvAsInt("FETCH_RETRIES", 2),
			StockFetchRetries: getEnvAsInt("STOCK_FETCH_RETRIES", 3),
			RetryPacing:       getEnvAsDuration("RETRY_PACING", 2*time.Second),
			RetryBackoff:      getEnvAsDuration("RETRY_BACKOFF", 2*time.Second),
			RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
		},
		Snapshot: SnapshotConfig{
			Enabled:             getEnvAsBool("SNAPSHOT_ENABLED", true),
			TTL:                 getEnvAsDuration("SNAPSHOT_TTL", 24*time.Hour),
			CleanupSchedule:     getEnv("SNAPSHOT_CLEANUP_SCHEDULE", "0 0 * * * *"),
			MaintenanceSchedule: getEnv("SNAPSHOT_MAINTENANCE_SCHEDULE", "0 */30 * * * *"),
		},
		IndicesJitter:  getEnvAsDuration("INDICES_JITTER", 200*time.Millisecond),
		StreamInterval: getEnvAsDuration("STREAM_INTERVAL", 2*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Snapshot.Enabled {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream base URL: %q", c.Upstream.BaseURL)
	}

	if c.Upstream.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.Upstream.CacheTTL)
	}
	if c.Upstream.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive, got %s", c.Upstream.SessionTTL)
	}
	if c.Upstream.SessionRetries < 1 {
		return fmt.Errorf("session retries must be at least 1, got %d", c.Upstream.SessionRetries)
	}
	if c.Upstream.FetchRetries < 1 || c.Upstream.StockFetchRetries < 1 {
		return fmt.Errorf("fetch retries must be at least 1")
	}
	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.Upstream.RequestTimeout)
	}
	if c.StreamInterval <= 0 {
		return fmt.Errorf("stream interval must be positive, got %s", c.StreamInterval)
	}

	if c.Snapshot.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Snapshot.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid snapshot cleanup schedule %q: %w", c.Snapshot.CleanupSchedule, err)
		}
		if _, err := parser.Parse(c.Snapshot.MaintenanceSchedule); err != nil {
			return fmt.Errorf("invalid snapshot maintenance schedule %q: %w", c.Snapshot.MaintenanceSchedule, err)
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("1500ms") or plain milliseconds ("1500").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
