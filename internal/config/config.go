// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the sqlite databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Refresh pipeline tuning
	ScanWorkers       int           // Concurrent workers walking the symbol universe
	QuoteConcurrency  int           // Admission capacity for the quote source
	ScrapeConcurrency int           // Admission capacity for the slower history source
	ProgressBatchSize int           // Completions between progress events
	ScanSchedule      string        // Cron expression for scheduled scans ("" disables)
	FetchTimeout      time.Duration // Per external call timeout

	// Remote (slow tier) snapshot store. Disabled when Bucket is empty.
	Remote RemoteConfig
}

// RemoteConfig holds the S3-compatible slow-tier store configuration.
// Endpoint is non-empty for R2/minio style deployments; empty means plain AWS.
type RemoteConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether a remote store is configured.
func (r RemoteConfig) Enabled() bool {
	return r.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SIGNALSCAN_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("SIGNALSCAN_PORT", 8010),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		ScanWorkers:       getEnvAsInt("SCAN_WORKERS", 4),
		QuoteConcurrency:  getEnvAsInt("QUOTE_CONCURRENCY", 4),
		ScrapeConcurrency: getEnvAsInt("SCRAPE_CONCURRENCY", 2),
		ProgressBatchSize: getEnvAsInt("PROGRESS_BATCH_SIZE", 50),
		ScanSchedule:      getEnv("SCAN_SCHEDULE", ""),
		FetchTimeout:      getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
		Remote: RemoteConfig{
			Bucket:          getEnv("REMOTE_BUCKET", ""),
			Endpoint:        getEnv("REMOTE_ENDPOINT", ""),
			Region:          getEnv("REMOTE_REGION", "auto"),
			AccessKeyID:     getEnv("REMOTE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("REMOTE_SECRET_ACCESS_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.ScanWorkers < 1 {
		return fmt.Errorf("SCAN_WORKERS must be at least 1, got %d", c.ScanWorkers)
	}
	if c.QuoteConcurrency < 1 || c.ScrapeConcurrency < 1 {
		return fmt.Errorf("admission capacities must be at least 1")
	}
	if c.ProgressBatchSize < 1 {
		return fmt.Errorf("PROGRESS_BATCH_SIZE must be at least 1, got %d", c.ProgressBatchSize)
	}
	if c.Remote.Enabled() && (c.Remote.AccessKeyID == "" || c.Remote.SecretAccessKey == "") {
		return fmt.Errorf("REMOTE_BUCKET is set but credentials are missing")
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
