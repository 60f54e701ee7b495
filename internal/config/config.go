package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"eventhub/internal/models"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "EVENTHUB_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// deprecatedConfig mirrors keys that moved, so stale operator configs are reported.
type deprecatedConfig struct {
	Security struct {
		RateLimit interface{} `yaml:"rate_limit"`
	} `yaml:"security"`
	Cache interface{} `yaml:"cache"`
}

// warnDeprecatedKeys logs a warning for each moved or removed key found in the YAML data.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.Security.RateLimit != nil {
		slog.Warn("Config key has moved to the top-level rate_limit section and is ignored.", "config_key", "security.rate_limit")
	}
	if dep.Cache != nil {
		slog.Warn("Config key is no longer used and can be removed from your config file.", "config_key", "cache")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment overlays EVENTHUB_* variables. Unparseable values are
// ignored and the previous value kept.
func loadFromEnvironment(config *models.Config) {
	setString(&config.Environment, "ENV")

	// Server configuration
	setInt(&config.Server.Port, "PORT")
	setString(&config.Server.Host, "HOST")
	setDuration(&config.Server.ReadTimeout, "READ_TIMEOUT")
	setDuration(&config.Server.WriteTimeout, "WRITE_TIMEOUT")
	setDuration(&config.Server.IdleTimeout, "IDLE_TIMEOUT")
	setBool(&config.Server.TLSEnabled, "TLS_ENABLED")
	setString(&config.Server.TLSCertFile, "TLS_CERT_FILE")
	setString(&config.Server.TLSKeyFile, "TLS_KEY_FILE")
	setString(&config.Server.PublicBaseURL, "PUBLIC_BASE_URL")

	// Storage configuration
	setString(&config.Storage.Type, "STORAGE_TYPE")
	setString(&config.Storage.Database.DSN, "DATABASE_DSN")
	setInt(&config.Storage.Database.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS")

	// Security configuration
	setString(&config.Security.BootstrapKey, "BOOTSTRAP_KEY")
	setBool(&config.Security.TrustProxyHeaders, "TRUST_PROXY_HEADERS")

	// Rate limit configuration. Per-rule limits are also read on every
	// request by LiveRules.
	setBool(&config.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setString(&config.RateLimit.Store, "RATE_LIMIT_STORE")
	setBool(&config.RateLimit.Disabled, "RATE_LIMIT_DISABLED")
	setDuration(&config.RateLimit.SweepInterval, "RATE_LIMIT_SWEEP_INTERVAL")
	setBool(&config.RateLimit.Stats.Enabled, "RATE_LIMIT_STATS_ENABLED")
	setDuration(&config.RateLimit.Stats.TTL, "RATE_LIMIT_STATS_TTL")

	// Redis configuration
	setString(&config.RateLimit.Redis.Addr, "REDIS_ADDR")
	setString(&config.RateLimit.Redis.Password, "REDIS_PASSWORD")
	setInt(&config.RateLimit.Redis.DB, "REDIS_DB")
	setInt(&config.RateLimit.Redis.PoolSize, "REDIS_POOL_SIZE")
	setString(&config.RateLimit.Redis.KeyPrefix, "REDIS_KEY_PREFIX")

	// Monitor configuration
	setBool(&config.Monitor.Enabled, "MONITOR_ENABLED")
	setDuration(&config.Monitor.Window, "MONITOR_WINDOW")
	setInt(&config.Monitor.RequestThreshold, "MONITOR_REQUEST_THRESHOLD")
	setInt(&config.Monitor.PerIPThreshold, "MONITOR_PER_IP_THRESHOLD")
	setInt(&config.Monitor.ServerErrorThreshold, "MONITOR_SERVER_ERROR_THRESHOLD")
	setInt(&config.Monitor.RateLimitedThreshold, "MONITOR_RATE_LIMITED_THRESHOLD")
	setDuration(&config.Monitor.AlertCooldown, "MONITOR_ALERT_COOLDOWN")

	// Logging configuration
	setString(&config.Logging.Level, "LOG_LEVEL")
	setString(&config.Logging.Format, "LOG_FORMAT")
	setString(&config.Logging.Output, "LOG_OUTPUT")
	setString(&config.Logging.FilePath, "LOG_FILE_PATH")

	// Metrics configuration
	setBool(&config.Metrics.Enabled, "METRICS_ENABLED")
	setString(&config.Metrics.Path, "METRICS_PATH")
	setInt(&config.Metrics.Port, "METRICS_PORT")

	// Tracing configuration
	setBool(&config.Observability.Tracing.Enabled, "TRACING_ENABLED")
	setString(&config.Observability.Tracing.Exporter, "TRACING_EXPORTER")
	setString(&config.Observability.Tracing.OTLPEndpoint, "TRACING_OTLP_ENDPOINT")
}

func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + name))
	return v, v != ""
}

func setString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, name string) {
	if v, ok := lookup(name); ok {
		*dst = strings.ToLower(v) == "true"
	}
}

func setDuration(dst *time.Duration, name string) {
	if v, ok := lookup(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Security.BootstrapKey = "evh_your-bootstrap-key-here"
	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "./data/eventhub.db"
	config.RateLimit.Redis.Addr = "localhost:6379"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
