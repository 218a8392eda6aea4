// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// MaxCacheTTL bounds how long a revoked key may stay cached.
const MaxCacheTTL = 60 * time.Second

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig                `yaml:"server"`
	Auth     AuthConfig                  `yaml:"auth"`
	Tiers    map[string]ratelimit.Limits `yaml:"tiers"`
	Ledger   LedgerConfig                `yaml:"ledger"`
	Database DatabaseConfig              `yaml:"database"`
	Timeouts TimeoutConfig               `yaml:"timeouts"`
	Cache    CacheConfig                 `yaml:"cache"`
	Usage    UsageConfig                 `yaml:"usage"`
	Admin    AdminConfig                 `yaml:"admin"`
	Logging  LoggingConfig               `yaml:"logging"`
	Metrics  MetricsConfig               `yaml:"metrics"`
	OpenAPI  OpenAPIConfig               `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	Pepper        string        `yaml:"pepper"` // HMAC secret; "base64:" prefix allowed
	Header        string        `yaml:"header"` // Header carrying the key (default: X-API-Key)
	MaxActiveKeys int           `yaml:"max_active_keys"`
	DefaultExpiry time.Duration `yaml:"default_expiry"`
}

// LedgerConfig selects and configures the rate limit ledger.
type LedgerConfig struct {
	Backend         string        `yaml:"backend"` // "memory", "redis", "sqlite" or "postgres"
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Redis           RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the redis ledger.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	Grace    time.Duration `yaml:"grace"` // kept past window end before expiry
}

// DatabaseConfig configures the credential and usage store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite", "postgres" or "memory"
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// TimeoutConfig bounds every call the authorizer makes.
type TimeoutConfig struct {
	Store  time.Duration `yaml:"store"`
	Ledger time.Duration `yaml:"ledger"`
	Touch  time.Duration `yaml:"touch"`
}

// CacheConfig configures the optional key lookup cache.
// A TTL of zero disables it; revocations reach cached entries only after TTL.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// UsageConfig configures the usage recorder.
type UsageConfig struct {
	BufferSize    int           `yaml:"buffer_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	TokenHash string `yaml:"token_hash"` // bcrypt hash; empty disables the admin API
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `yaml:"format"` // "json" or "console"
	File       string `yaml:"file"`   // optional rotated log file
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OpenAPIConfig configures Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a configuration with every default applied.
// Files and environment variables are layered on top of it.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			Header:        "X-API-Key",
			MaxActiveKeys: 3,
			DefaultExpiry: 365 * 24 * time.Hour,
		},
		Ledger: LedgerConfig{
			Backend:         "sqlite",
			CleanupInterval: 10 * time.Minute,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "xbrlgate:rl:",
				Grace:  time.Hour,
			},
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DSN:      "xbrlgate.db",
			MaxConns: 10,
			MinConns: 1,
		},
		Timeouts: TimeoutConfig{
			Store:  2 * time.Second,
			Ledger: 2 * time.Second,
			Touch:  5 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries: 10000,
		},
		Usage: UsageConfig{
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
			WriteTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		OpenAPI: OpenAPIConfig{Enabled: true},
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv creates configuration from environment variables only.
//
// Environment variables:
//
//	XBRLGATE_AUTH_PEPPER      - HMAC pepper (required; KEY_PEPPER is also read)
//	XBRLGATE_DATABASE_DRIVER  - sqlite, postgres or memory (default: sqlite)
//	XBRLGATE_DATABASE_DSN     - Database path or URL (default: xbrlgate.db)
//	XBRLGATE_LEDGER_BACKEND   - memory, redis, sqlite or postgres (default: sqlite)
//	XBRLGATE_REDIS_ADDR       - Redis address for the redis ledger
//	XBRLGATE_SERVER_PORT      - Listen port (default: 8080)
//	XBRLGATE_LOG_LEVEL        - debug, info, warn, error (default: info)
//	XBRLGATE_ADMIN_TOKEN_HASH - bcrypt hash of the admin token
func LoadFromEnv() (*Config, error) {
	cfg := Defaults()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadWithFallback loads path when it exists, otherwise the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	if !HasEnvConfig() {
		return nil, fmt.Errorf("no configuration found: provide %s or set XBRLGATE_AUTH_PEPPER", path)
	}
	return LoadFromEnv()
}

// HasEnvConfig reports whether the environment carries a pepper.
func HasEnvConfig() bool {
	return os.Getenv("XBRLGATE_AUTH_PEPPER") != "" || os.Getenv("KEY_PEPPER") != ""
}

// applyEnvOverrides applies XBRLGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("XBRLGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("XBRLGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Auth configuration
	if v := os.Getenv("XBRLGATE_AUTH_PEPPER"); v != "" {
		cfg.Auth.Pepper = v
	} else if v := os.Getenv("KEY_PEPPER"); v != "" && cfg.Auth.Pepper == "" {
		cfg.Auth.Pepper = v
	}
	if v := os.Getenv("XBRLGATE_AUTH_HEADER"); v != "" {
		cfg.Auth.Header = v
	}

	// Ledger configuration
	if v := os.Getenv("XBRLGATE_LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("XBRLGATE_REDIS_ADDR"); v != "" {
		cfg.Ledger.Redis.Addr = v
	}
	if v := os.Getenv("XBRLGATE_REDIS_PASSWORD"); v != "" {
		cfg.Ledger.Redis.Password = v
	}
	if v := os.Getenv("XBRLGATE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.Redis.DB = n
		}
	}

	// Database configuration
	if v := os.Getenv("XBRLGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("XBRLGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Cache configuration
	if v := os.Getenv("XBRLGATE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	// Admin configuration
	if v := os.Getenv("XBRLGATE_ADMIN_TOKEN_HASH"); v != "" {
		cfg.Admin.TokenHash = v
	}

	// Logging configuration
	if v := os.Getenv("XBRLGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("XBRLGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("XBRLGATE_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	// Metrics and docs
	if v := os.Getenv("XBRLGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("XBRLGATE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Auth.Pepper == "" {
		return fmt.Errorf("auth.pepper is required (or set KEY_PEPPER)")
	}
	if c.Auth.Header == "" {
		return fmt.Errorf("auth.header must not be empty")
	}
	if c.Auth.MaxActiveKeys < 1 {
		return fmt.Errorf("auth.max_active_keys must be at least 1, got %d", c.Auth.MaxActiveKeys)
	}

	if _, err := c.TierLimits(); err != nil {
		return err
	}

	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be 'sqlite', 'postgres' or 'memory', got %q", c.Database.Driver)
	}

	switch c.Ledger.Backend {
	case "memory":
	case "redis":
		if c.Ledger.Redis.Addr == "" {
			return fmt.Errorf("ledger.redis.addr is required for the redis ledger")
		}
	case "sqlite", "postgres":
		if c.Ledger.Backend != c.Database.Driver {
			return fmt.Errorf("ledger.backend %q requires database.driver %q, got %q",
				c.Ledger.Backend, c.Ledger.Backend, c.Database.Driver)
		}
	default:
		return fmt.Errorf("ledger.backend must be one of: memory, redis, sqlite, postgres")
	}

	if c.Timeouts.Store <= 0 || c.Timeouts.Ledger <= 0 || c.Timeouts.Touch <= 0 {
		return fmt.Errorf("timeouts.store, timeouts.ledger and timeouts.touch must be positive")
	}

	if c.Cache.TTL < 0 || c.Cache.TTL > MaxCacheTTL {
		return fmt.Errorf("cache.ttl must be between 0 and %s, got %s", MaxCacheTTL, c.Cache.TTL)
	}

	if c.Admin.TokenHash != "" && !strings.HasPrefix(c.Admin.TokenHash, "$2") {
		return fmt.Errorf("admin.token_hash must be a bcrypt hash (see 'xbrlgate admin hash-token')")
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	return nil
}

// TierLimits converts the tiers section into a tier table.
// Tiers not listed keep their defaults when merged by the authorizer.
func (c *Config) TierLimits() (ratelimit.Tiers, error) {
	tiers := make(ratelimit.Tiers, len(c.Tiers))
	for name, limits := range c.Tiers {
		t, err := key.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("tiers: %w", err)
		}
		tiers[t] = limits
	}
	return tiers, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
