// ABOUTME: Configuration loading for skillserver: YAML file + environment variables
// ABOUTME: Environment variables always win, matching the env-first posture of the wire spec

package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved server configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Session SessionConfig
	Catalog CatalogConfig
	Admin   AdminConfig
	Logging LoggingConfig
	Metrics MetricsConfig
	Tracing TracingConfig
}

// ServerConfig holds listener addresses.
type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

// StorageConfig selects and parameterizes the ObjectStore/MetadataStore/InvocationLog backends.
type StorageConfig struct {
	Backend              string `mapstructure:"storage_backend"` // "local" or "remote"
	SkillCacheDir         string `mapstructure:"skill_cache_dir"`
	ObjectStoreBucket     string `mapstructure:"object_store_bucket"`
	ObjectStoreEndpoint   string `mapstructure:"object_store_endpoint"`
	ObjectStorePrefix     string `mapstructure:"object_store_prefix"`
	ObjectStoreAccessKey  string `mapstructure:"object_store_access_key"`
	ObjectStoreSecretKey  string `mapstructure:"object_store_secret_key"`
	ObjectStoreUseTLS     bool   `mapstructure:"object_store_use_tls"`
	MetadataTable         string `mapstructure:"metadata_table"`
	InvocationLogTable    string `mapstructure:"invocation_log_table"`
	InvocationLogTTLDays  int    `mapstructure:"invocation_log_ttl_days"`
	RedisAddr             string `mapstructure:"redis_addr"`
}

// SessionConfig holds the SessionRegistry's timeout knobs.
type SessionConfig struct {
	IdleMinutes  int `mapstructure:"session_idle_minutes"`
	ExpiryHours  int `mapstructure:"session_expiry_hours"`
}

// CatalogConfig holds SkillCatalog refresh/dispatch timing.
type CatalogConfig struct {
	RefreshSeconds        int `mapstructure:"catalog_refresh_seconds"`
	ToolCallTimeoutSeconds int `mapstructure:"tool_call_timeout_seconds"`
	AllowEmptyCatalog     bool `mapstructure:"allow_empty_catalog"`
}

// AdminConfig holds the static/JWT admin bearer token.
type AdminConfig struct {
	AuthToken string `mapstructure:"admin_auth_token"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"log_format"` // "text" or "json"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"metrics_addr"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otel_exporter_otlp_endpoint"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable value, leaving unset variables as empty strings.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// Load reads configuration from an optional YAML file at path (skipped if
// path is empty or missing) and overlays it with environment variables,
// which always take precedence. Every field has a built-in default so a
// call with an empty path produces a usable, if minimal, configuration.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			expanded := expandEnvVars(string(data))
			if err := v.ReadConfig(bytes.NewReader([]byte(expanded))); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	bindEnv(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{HTTPAddr: v.GetString("http_addr")},
		Storage: StorageConfig{
			Backend:              v.GetString("storage_backend"),
			SkillCacheDir:        v.GetString("skill_cache_dir"),
			ObjectStoreBucket:    v.GetString("object_store_bucket"),
			ObjectStoreEndpoint:  v.GetString("object_store_endpoint"),
			ObjectStorePrefix:    v.GetString("object_store_prefix"),
			ObjectStoreAccessKey: v.GetString("object_store_access_key"),
			ObjectStoreSecretKey: v.GetString("object_store_secret_key"),
			ObjectStoreUseTLS:    v.GetBool("object_store_use_tls"),
			MetadataTable:        v.GetString("metadata_table"),
			InvocationLogTable:   v.GetString("invocation_log_table"),
			InvocationLogTTLDays: v.GetInt("invocation_log_ttl_days"),
			RedisAddr:            v.GetString("redis_addr"),
		},
		Session: SessionConfig{
			IdleMinutes: v.GetInt("session_idle_minutes"),
			ExpiryHours: v.GetInt("session_expiry_hours"),
		},
		Catalog: CatalogConfig{
			RefreshSeconds:         v.GetInt("catalog_refresh_seconds"),
			ToolCallTimeoutSeconds: v.GetInt("tool_call_timeout_seconds"),
			AllowEmptyCatalog:      v.GetBool("allow_empty_catalog"),
		},
		Admin:   AdminConfig{AuthToken: v.GetString("admin_auth_token")},
		Logging: LoggingConfig{Level: v.GetString("log_level"), Format: v.GetString("log_format")},
		Metrics: MetricsConfig{Addr: v.GetString("metrics_addr")},
		Tracing: TracingConfig{OTLPEndpoint: v.GetString("otel_exporter_otlp_endpoint")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", "0.0.0.0:8080")
	v.SetDefault("storage_backend", "local")
	v.SetDefault("skill_cache_dir", "./data/skills")
	v.SetDefault("object_store_prefix", "")
	v.SetDefault("metadata_table", "skill_metadata")
	v.SetDefault("invocation_log_table", "invocation_log")
	v.SetDefault("invocation_log_ttl_days", 30)
	v.SetDefault("session_idle_minutes", 15)
	v.SetDefault("session_expiry_hours", 24)
	v.SetDefault("catalog_refresh_seconds", 60)
	v.SetDefault("tool_call_timeout_seconds", 30)
	v.SetDefault("allow_empty_catalog", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_addr", "0.0.0.0:9090")
}

// bindEnv binds each setting to the exact environment variable name the
// wire spec documents (no prefix), so e.g. STORAGE_BACKEND, not
// SKILLSERVER_STORAGE_BACKEND.
func bindEnv(v *viper.Viper) {
	names := map[string]string{
		"http_addr":                 "HTTP_ADDR",
		"storage_backend":           "STORAGE_BACKEND",
		"skill_cache_dir":           "SKILL_CACHE_DIR",
		"object_store_bucket":       "OBJECT_STORE_BUCKET",
		"object_store_endpoint":     "OBJECT_STORE_ENDPOINT",
		"object_store_prefix":       "OBJECT_STORE_PREFIX",
		"object_store_access_key":   "OBJECT_STORE_ACCESS_KEY",
		"object_store_secret_key":   "OBJECT_STORE_SECRET_KEY",
		"object_store_use_tls":      "OBJECT_STORE_USE_TLS",
		"metadata_table":            "METADATA_TABLE",
		"invocation_log_table":      "INVOCATION_LOG_TABLE",
		"invocation_log_ttl_days":   "INVOCATION_LOG_TTL_DAYS",
		"redis_addr":                "REDIS_ADDR",
		"session_idle_minutes":      "SESSION_IDLE_MINUTES",
		"session_expiry_hours":      "SESSION_EXPIRY_HOURS",
		"catalog_refresh_seconds":   "CATALOG_REFRESH_SECONDS",
		"tool_call_timeout_seconds": "TOOL_CALL_TIMEOUT_SECONDS",
		"allow_empty_catalog":       "ALLOW_EMPTY_CATALOG",
		"admin_auth_token":          "ADMIN_AUTH_TOKEN",
		"log_level":                 "LOG_LEVEL",
		"log_format":                "LOG_FORMAT",
		"metrics_addr":              "METRICS_ADDR",
		"otel_exporter_otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	}
	for key, env := range names {
		_ = v.BindEnv(key, env)
	}
}

// Validate checks that all required configuration fields are present and valid.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local", "remote":
	default:
		return fmt.Errorf("storage.backend must be 'local' or 'remote', got %q", c.Storage.Backend)
	}

	if c.Storage.Backend == "remote" {
		if c.Storage.ObjectStoreBucket == "" {
			return fmt.Errorf("object_store_bucket is required when storage_backend=remote")
		}
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required when storage_backend=remote")
		}
	}

	if c.Session.IdleMinutes <= 0 {
		return fmt.Errorf("session_idle_minutes must be positive")
	}
	if c.Session.ExpiryHours <= 0 {
		return fmt.Errorf("session_expiry_hours must be positive")
	}
	if c.Catalog.RefreshSeconds <= 0 {
		return fmt.Errorf("catalog_refresh_seconds must be positive")
	}
	if c.Catalog.ToolCallTimeoutSeconds <= 0 {
		return fmt.Errorf("tool_call_timeout_seconds must be positive")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", c.Logging.Format)
	}

	return nil
}

// SessionIdleTimeout returns the idle timeout as a time.Duration.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleMinutes) * time.Minute
}

// SessionExpiry returns the suspended-session expiry as a time.Duration.
func (c *Config) SessionExpiry() time.Duration {
	return time.Duration(c.Session.ExpiryHours) * time.Hour
}

// CatalogRefreshInterval returns the catalog refresh interval as a time.Duration.
func (c *Config) CatalogRefreshInterval() time.Duration {
	return time.Duration(c.Catalog.RefreshSeconds) * time.Second
}

// ToolCallTimeout returns the per tools/call timeout as a time.Duration.
func (c *Config) ToolCallTimeout() time.Duration {
	return time.Duration(c.Catalog.ToolCallTimeoutSeconds) * time.Second
}

// InvocationLogTTL returns the invocation log retention period as a time.Duration.
func (c *Config) InvocationLogTTL() time.Duration {
	return time.Duration(c.Storage.InvocationLogTTLDays) * 24 * time.Hour
}
