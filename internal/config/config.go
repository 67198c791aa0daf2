package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Forecastify API server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Blob     BlobConfig
	Forecast ForecastConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// BlobConfig points at the external object store holding uploaded CSVs.
type BlobConfig struct {
	BaseURL    string
	Bucket     string
	ServiceKey string
	Timeout    time.Duration
}

// ForecastConfig points at the external forecasting microservice.
type ForecastConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PipelineConfig bounds the upload pipeline's retry behaviour.
type PipelineConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. A .env file is loaded first when present (FORECASTIFY_ENV_FILE
// overrides the path). Returns an error with a descriptive message if any
// required value is missing or invalid.
func Load() (*Config, error) {
	if path := os.Getenv("FORECASTIFY_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("FORECASTIFY_PORT", 8080),
			Env:  envString("FORECASTIFY_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Blob: BlobConfig{
			BaseURL:    os.Getenv("BLOB_BASE_URL"),
			Bucket:     envString("BLOB_BUCKET", "model-inputs"),
			ServiceKey: os.Getenv("BLOB_SERVICE_KEY"),
			Timeout:    envDuration("BLOB_TIMEOUT", 30*time.Second),
		},
		Forecast: ForecastConfig{
			BaseURL: os.Getenv("FORECAST_BASE_URL"),
			Timeout: envDurationSecs("FORECAST_TIMEOUT_SECS", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			MaxAttempts: envInt("PIPELINE_MAX_ATTEMPTS", 3),
			RetryDelay:  envDuration("PIPELINE_RETRY_DELAY", 2*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Blob.BaseURL == "" {
		return fmt.Errorf("BLOB_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Blob.BaseURL, "http://") && !strings.HasPrefix(c.Blob.BaseURL, "https://") {
		return fmt.Errorf("BLOB_BASE_URL must start with http:// or https://, got %q", c.Blob.BaseURL)
	}
	if c.Blob.Bucket == "" {
		return fmt.Errorf("BLOB_BUCKET must not be empty")
	}

	if c.Forecast.BaseURL == "" {
		return fmt.Errorf("FORECAST_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Forecast.BaseURL, "http://") && !strings.HasPrefix(c.Forecast.BaseURL, "https://") {
		return fmt.Errorf("FORECAST_BASE_URL must start with http:// or https://, got %q", c.Forecast.BaseURL)
	}

	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("PIPELINE_MAX_ATTEMPTS must be >= 1, got %d", c.Pipeline.MaxAttempts)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
