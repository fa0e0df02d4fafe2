// Package models - Service configuration and operational settings.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, limiter, security, etc.)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations at startup, never at request time
// - Support for multiple deployment scenarios (development, production, cloud)
package models

import (
	"errors"
	"fmt"
	"time"
)

// Limiter enforcement modes.
const (
	ModeBlock    = "block"
	ModeSlowdown = "slowdown"
)

// Counter store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Limiter       LimiterConfig       `yaml:"limiter" json:"limiter"`             // Rate limiting policy and backend
	Security      SecurityConfig      `yaml:"security" json:"security"`           // API key table
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Prometheus metrics endpoint
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing and service identity
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// LimiterConfig selects the enforcement policy and the counter store backend.
type LimiterConfig struct {
	Window      time.Duration  `yaml:"window" json:"window"`             // Fixed window length
	MaxRequests int            `yaml:"max_requests" json:"max_requests"` // Requests allowed per window per key
	Mode        string         `yaml:"mode" json:"mode"`                 // "block" or "slowdown"
	FailClosed  bool           `yaml:"fail_closed" json:"fail_closed"`   // Reject when the store is unreachable
	Store       string         `yaml:"store" json:"store"`               // memory, redis, sqlite, postgres
	Slowdown    SlowdownConfig `yaml:"slowdown" json:"slowdown"`
	Redis       RedisConfig    `yaml:"redis" json:"redis"`
	SQLite      SQLiteConfig   `yaml:"sqlite" json:"sqlite"`
	Postgres    PostgresConfig `yaml:"postgres" json:"postgres"`
}

// SlowdownConfig tunes the exponential delay applied to over-limit requests
// under slowdown mode.
type SlowdownConfig struct {
	Base   time.Duration `yaml:"base" json:"base"`
	Growth float64       `yaml:"growth" json:"growth"`
	Cap    time.Duration `yaml:"cap" json:"cap"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"` // ":memory:" or a file path
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

type SecurityConfig struct {
	APIKeys []APIKey `yaml:"api_keys" json:"api_keys"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // "stdout" or "otlp"
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
// The memory store keeps single-node deployments dependency-free; Redis or
// Postgres should be configured whenever more than one gateway instance
// shares a quota.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
		},
		Limiter: LimiterConfig{
			Window:      time.Minute,
			MaxRequests: 100,
			Mode:        ModeBlock,
			FailClosed:  false,
			Store:       StoreMemory,
			Slowdown: SlowdownConfig{
				Base:   500 * time.Millisecond,
				Growth: 1.5,
				Cap:    10 * time.Second,
			},
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 20,
			},
			SQLite: SQLiteConfig{
				Path: ":memory:",
			},
		},
		Security: SecurityConfig{
			APIKeys: []APIKey{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "adgate",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("invalid limiter config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (lc *LimiterConfig) Validate() error {
	if lc.Window <= 0 {
		return errors.New("window must be positive")
	}

	if lc.Window%time.Second != 0 {
		return errors.New("window must be a whole number of seconds")
	}

	if lc.MaxRequests <= 0 {
		return errors.New("max_requests must be positive")
	}

	switch lc.Mode {
	case ModeBlock, ModeSlowdown:
	default:
		return fmt.Errorf("invalid mode: %q (expected %q or %q)", lc.Mode, ModeBlock, ModeSlowdown)
	}

	switch lc.Store {
	case StoreMemory:
	case StoreRedis:
		if lc.Redis.Addr == "" {
			return errors.New("redis address is required for the redis store")
		}
	case StoreSQLite:
		if lc.SQLite.Path == "" {
			return errors.New("sqlite path is required for the sqlite store")
		}
	case StorePostgres:
		if lc.Postgres.DSN == "" {
			return errors.New("postgres DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("invalid store: %q", lc.Store)
	}

	if lc.Mode == ModeSlowdown {
		if lc.Slowdown.Base <= 0 {
			return errors.New("slowdown base must be positive")
		}
		if lc.Slowdown.Growth < 1 {
			return errors.New("slowdown growth must be at least 1")
		}
		if lc.Slowdown.Cap < lc.Slowdown.Base {
			return errors.New("slowdown cap must be at least the base delay")
		}
	}

	return nil
}

func (sec *SecurityConfig) Validate() error {
	for _, apiKey := range sec.APIKeys {
		if apiKey.Key == "" {
			return errors.New("API key cannot be empty")
		}
		if apiKey.Name == "" {
			return errors.New("API key name cannot be empty")
		}
		switch apiKey.Role {
		case "admin", "user":
		default:
			return fmt.Errorf("invalid role %q for API key %q", apiKey.Role, apiKey.Name)
		}
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	switch lc.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	switch lc.Output {
	case "stdout", "stderr":
	case "file":
		if lc.FilePath == "" {
			return errors.New("file path is required when output is file")
		}
	default:
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}
