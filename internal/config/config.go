// Package config loads gateway configuration from a YAML file with
// environment variable overrides, in that order, on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"adgate/internal/models"
)

// Load loads configuration from file and environment variables.
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("ADGATE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("ADGATE_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("ADGATE_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("ADGATE_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("ADGATE_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	if tls := os.Getenv("ADGATE_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("ADGATE_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("ADGATE_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Limiter configuration
	if window := os.Getenv("ADGATE_LIMITER_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			config.Limiter.Window = d
		}
	}

	if maxReq := os.Getenv("ADGATE_LIMITER_MAX_REQUESTS"); maxReq != "" {
		if n, err := strconv.Atoi(maxReq); err == nil {
			config.Limiter.MaxRequests = n
		}
	}

	if mode := os.Getenv("ADGATE_LIMITER_MODE"); mode != "" {
		config.Limiter.Mode = mode
	}

	if failClosed := os.Getenv("ADGATE_LIMITER_FAIL_CLOSED"); failClosed != "" {
		config.Limiter.FailClosed = strings.ToLower(failClosed) == "true"
	}

	if store := os.Getenv("ADGATE_LIMITER_STORE"); store != "" {
		config.Limiter.Store = store
	}

	if base := os.Getenv("ADGATE_SLOWDOWN_BASE"); base != "" {
		if d, err := time.ParseDuration(base); err == nil {
			config.Limiter.Slowdown.Base = d
		}
	}

	if growth := os.Getenv("ADGATE_SLOWDOWN_GROWTH"); growth != "" {
		if g, err := strconv.ParseFloat(growth, 64); err == nil {
			config.Limiter.Slowdown.Growth = g
		}
	}

	if cap := os.Getenv("ADGATE_SLOWDOWN_CAP"); cap != "" {
		if d, err := time.ParseDuration(cap); err == nil {
			config.Limiter.Slowdown.Cap = d
		}
	}

	// Redis configuration
	if addr := os.Getenv("ADGATE_REDIS_ADDR"); addr != "" {
		config.Limiter.Redis.Addr = addr
	}

	if password := os.Getenv("ADGATE_REDIS_PASSWORD"); password != "" {
		config.Limiter.Redis.Password = password
	}

	if db := os.Getenv("ADGATE_REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			config.Limiter.Redis.DB = dbNum
		}
	}

	if poolSize := os.Getenv("ADGATE_REDIS_POOL_SIZE"); poolSize != "" {
		if size, err := strconv.Atoi(poolSize); err == nil {
			config.Limiter.Redis.PoolSize = size
		}
	}

	// SQLite configuration
	if path := os.Getenv("ADGATE_SQLITE_PATH"); path != "" {
		config.Limiter.SQLite.Path = path
	}

	// Postgres configuration
	if dsn := os.Getenv("ADGATE_POSTGRES_DSN"); dsn != "" {
		config.Limiter.Postgres.DSN = dsn
	}

	// Logging configuration
	if level := os.Getenv("ADGATE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("ADGATE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("ADGATE_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("ADGATE_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("ADGATE_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("ADGATE_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("ADGATE_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Observability configuration
	if name := os.Getenv("ADGATE_SERVICE_NAME"); name != "" {
		config.Observability.ServiceName = name
	}

	if tracing := os.Getenv("ADGATE_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("ADGATE_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("ADGATE_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}

// SaveExample saves an example configuration file.
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// Example key table: one admin key, one metered user key.
	config.Security.APIKeys = []models.APIKey{
		{Key: "adg_example-admin-key", Name: "ops", Role: "admin", Enabled: true},
		{Key: "adg_example-user-key", Name: "acme-agency", Role: "user", Enabled: true},
	}

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
