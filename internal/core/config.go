package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the main configuration for skiff
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Fetcher   FetcherConfig   `json:"fetcher"`
	CloudSync CloudSyncConfig `json:"cloud_sync"`
	Fever     FeverConfig     `json:"fever"`
}

// ServerConfig contains HTTP API configuration
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// FetcherConfig contains feed fetching configuration
type FetcherConfig struct {
	UserAgent       string        `json:"user_agent"`
	Timeout         time.Duration `json:"timeout"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	MaxWorkers      int           `json:"max_workers"`
}

// CloudSyncConfig contains cloud synchronization configuration.
// The core reads these values but never writes them; the cursor is
// persisted separately in the database.
type CloudSyncConfig struct {
	Enabled       bool          `json:"enabled"`
	Endpoint      string        `json:"endpoint"`
	Token         string        `json:"token"`
	SyncOnStartup bool          `json:"sync_on_startup"`
	Interval      time.Duration `json:"interval"`
	QueueBatch    int           `json:"queue_batch"`
}

// FeverConfig contains legacy Fever API sync configuration
type FeverConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SKIFF_PORT", 4400),
			Host: getEnvOrDefault("SKIFF_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Path: getEnvOrDefault("SKIFF_DB_PATH", "./skiff.db"),
		},
		Fetcher: FetcherConfig{
			UserAgent:       getEnvOrDefault("SKIFF_USER_AGENT", "skiff/1.0 (+https://github.com/ajbates93/skiff)"),
			Timeout:         getEnvAsDuration("SKIFF_FETCH_TIMEOUT", 30*time.Second),
			RefreshInterval: getEnvAsDuration("SKIFF_REFRESH_INTERVAL", 1*time.Hour),
			MaxWorkers:      getEnvAsInt("SKIFF_MAX_WORKERS", 5),
		},
		CloudSync: CloudSyncConfig{
			Enabled:       getEnvAsBool("SKIFF_SYNC_ENABLED", false),
			Endpoint:      getEnvOrDefault("SKIFF_SYNC_ENDPOINT", ""),
			Token:         getEnvOrDefault("SKIFF_SYNC_TOKEN", ""),
			SyncOnStartup: getEnvAsBool("SKIFF_SYNC_ON_STARTUP", true),
			Interval:      getEnvAsDuration("SKIFF_SYNC_INTERVAL", 15*time.Minute),
			QueueBatch:    getEnvAsInt("SKIFF_SYNC_QUEUE_BATCH", 20),
		},
		Fever: FeverConfig{
			Enabled:  getEnvAsBool("SKIFF_FEVER_ENABLED", false),
			Endpoint: getEnvOrDefault("SKIFF_FEVER_ENDPOINT", ""),
			Username: getEnvOrDefault("SKIFF_FEVER_USERNAME", ""),
			Password: getEnvOrDefault("SKIFF_FEVER_PASSWORD", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Fetcher.MaxWorkers < 1 {
		return fmt.Errorf("fetcher max workers must be at least 1")
	}

	if c.CloudSync.Enabled && c.CloudSync.Endpoint == "" {
		return fmt.Errorf("sync endpoint is required when cloud sync is enabled")
	}

	if c.Fever.Enabled {
		if c.Fever.Endpoint == "" {
			return fmt.Errorf("fever endpoint is required when fever sync is enabled")
		}
		if c.Fever.Username == "" {
			return fmt.Errorf("fever username is required when fever sync is enabled")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
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
