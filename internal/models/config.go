// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component
// - Defaults that run out of the box with in-memory storage
// - Validation that catches misconfiguration at startup
// - Rate limit rules are overridable per request through the environment
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Rate limit store backends
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// EnvironmentProduction disables every test-only switch.
const EnvironmentProduction = "production"

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: registration, short link and API key persistence
// - Security: authentication and proxy trust
// - RateLimit: sliding-window store and per-policy rules
// - Monitor: request anomaly alerting
// - Logging, Metrics, Observability: operational output
type Config struct {
	Environment   string              `yaml:"environment" json:"environment"`
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Monitor       MonitorConfig       `yaml:"monitor" json:"monitor"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
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
	// PublicBaseURL prefixes short link keys in API responses.
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" json:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

type SecurityConfig struct {
	// BootstrapKey is seeded as an admin API key at startup when set.
	BootstrapKey string `yaml:"bootstrap_key" json:"-"`
	// TrustProxyHeaders lets X-Forwarded-For / X-Real-IP decide the client IP.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
}

// LimitRule is a sliding window and the number of requests allowed inside it.
type LimitRule struct {
	Window time.Duration `yaml:"window" json:"window"`
	Limit  int           `yaml:"limit" json:"limit"`
}

type RegistrationLimits struct {
	PerIP    LimitRule `yaml:"per_ip" json:"per_ip"`
	PerEmail LimitRule `yaml:"per_email" json:"per_email"`
}

type ShortLinkLimits struct {
	PerUser LimitRule `yaml:"per_user" json:"per_user"`
	PerIP   LimitRule `yaml:"per_ip" json:"per_ip"`
}

type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Store   string `yaml:"store" json:"store"`
	// Disabled bypasses every check outside production. Test use only.
	Disabled           bool               `yaml:"disabled" json:"disabled"`
	SweepInterval      time.Duration      `yaml:"sweep_interval" json:"sweep_interval"`
	Redis              RedisConfig        `yaml:"redis" json:"redis"`
	Stats              StatsConfig        `yaml:"stats" json:"stats"`
	PublicRegistration RegistrationLimits `yaml:"public_registration" json:"public_registration"`
	ShortLinks         ShortLinkLimits    `yaml:"short_links" json:"short_links"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"-"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// StatsConfig controls the Redis abuse counters.
type StatsConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

type MonitorConfig struct {
	Enabled              bool          `yaml:"enabled" json:"enabled"`
	Window               time.Duration `yaml:"window" json:"window"`
	RequestThreshold     int           `yaml:"request_threshold" json:"request_threshold"`
	PerIPThreshold       int           `yaml:"per_ip_threshold" json:"per_ip_threshold"`
	ServerErrorThreshold int           `yaml:"server_error_threshold" json:"server_error_threshold"`
	RateLimitedThreshold int           `yaml:"rate_limited_threshold" json:"rate_limited_threshold"`
	AlertCooldown        time.Duration `yaml:"alert_cooldown" json:"alert_cooldown"`
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
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with defaults suitable for a
// single-instance deployment.
//
// Default Values Rationale:
// - Memory storage and memory rate limit store: no external dependencies
// - Registration: 10 attempts per IP per 10 minutes, 3 per email per hour
// - Short links: 20 per user and 50 per IP per 10 minutes
// - Monitor alerts at most once per minute per subject
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:          8080,
			Host:          "0.0.0.0",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			PublicBaseURL: "http://localhost:8080",
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns: 25,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Store:         RateLimitStoreMemory,
			SweepInterval: 5 * time.Minute,
			Redis: RedisConfig{
				PoolSize:  10,
				KeyPrefix: "eventhub:ratelimit",
			},
			Stats: StatsConfig{
				TTL: 24 * time.Hour,
			},
			PublicRegistration: RegistrationLimits{
				PerIP:    LimitRule{Window: 10 * time.Minute, Limit: 10},
				PerEmail: LimitRule{Window: time.Hour, Limit: 3},
			},
			ShortLinks: ShortLinkLimits{
				PerUser: LimitRule{Window: 10 * time.Minute, Limit: 20},
				PerIP:   LimitRule{Window: 10 * time.Minute, Limit: 50},
			},
		},
		Monitor: MonitorConfig{
			Enabled:              true,
			Window:               time.Minute,
			RequestThreshold:     1000,
			PerIPThreshold:       200,
			ServerErrorThreshold: 20,
			RateLimitedThreshold: 50,
			AlertCooldown:        time.Minute,
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
			ServiceName: "eventhub",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// LargestWindow returns the longest window among all rate limit rules.
func (rc *RateLimitConfig) LargestWindow() time.Duration {
	largest := time.Duration(0)
	for _, rule := range []LimitRule{
		rc.PublicRegistration.PerIP,
		rc.PublicRegistration.PerEmail,
		rc.ShortLinks.PerUser,
		rc.ShortLinks.PerIP,
	} {
		if rule.Window > largest {
			largest = rule.Window
		}
	}
	return largest
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("invalid monitor config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
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

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
}

func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}

	switch rc.Store {
	case RateLimitStoreMemory:
	case RateLimitStoreRedis:
		if rc.Redis.Addr == "" {
			return errors.New("Redis address is required when store is redis")
		}
	default:
		return fmt.Errorf("invalid rate limit store: %s", rc.Store)
	}

	if rc.Stats.Enabled && rc.Store != RateLimitStoreRedis {
		return errors.New("stats require the redis store")
	}

	if rc.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}

	rules := map[string]LimitRule{
		"public_registration.per_ip":    rc.PublicRegistration.PerIP,
		"public_registration.per_email": rc.PublicRegistration.PerEmail,
		"short_links.per_user":          rc.ShortLinks.PerUser,
		"short_links.per_ip":            rc.ShortLinks.PerIP,
	}
	for name, rule := range rules {
		if rule.Window <= 0 {
			return fmt.Errorf("%s: window must be positive", name)
		}
		if rule.Limit < 0 {
			return fmt.Errorf("%s: limit cannot be negative", name)
		}
	}

	return nil
}

func (mc *MonitorConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}
	if mc.Window <= 0 {
		return errors.New("monitor window must be positive")
	}
	if mc.AlertCooldown < 0 {
		return errors.New("alert cooldown cannot be negative")
	}
	if mc.RequestThreshold < 0 || mc.PerIPThreshold < 0 || mc.ServerErrorThreshold < 0 || mc.RateLimitedThreshold < 0 {
		return errors.New("monitor thresholds cannot be negative")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !oneOf(lc.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !oneOf(lc.Format, "json", "text") {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !oneOf(lc.Output, "stdout", "stderr", "file") {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
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

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	if !oneOf(oc.Tracing.Exporter, "stdout", "otlp") {
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required when exporter is otlp")
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
