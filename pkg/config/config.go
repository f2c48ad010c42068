package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marklog/marklog/internal/bytesize"
	"github.com/marklog/marklog/pkg/store"
)

// Environment names accepted in the env section.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Config represents the marklog server configuration.
//
// Static configuration only: listener settings, database connection,
// credential secrets, limits, background worker tuning. Workspaces,
// keys and webhooks are dynamic state managed through the API.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (MARKLOG_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the persistence backend (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Auth configures session and admin credentials.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Limits configures storage quotas, size caps and rate rules.
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`

	// Webhooks configures outbound delivery.
	Webhooks WebhooksConfig `mapstructure:"webhooks" yaml:"webhooks"`

	// Exports configures archive jobs and artifact storage.
	Exports ExportsConfig `mapstructure:"exports" yaml:"exports"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Env is the deployment environment: production, development or test.
	// Test-only surfaces (fixture reset) are refused in production.
	// Env aliases: MP_ENV, NODE_ENV.
	Env string `mapstructure:"env" validate:"required,oneof=production development test" yaml:"env"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the listen address. Default: 0.0.0.0
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// Port is the listen port. Default: 8080
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// RequestTimeout is the per-request deadline enforced by middleware.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required,gt=0" yaml:"request_timeout"`

	// BodyLimit caps the request body size.
	// Supports human-readable formats: "2MiB", "500KiB", or plain bytes.
	BodyLimit bytesize.ByteSize `mapstructure:"body_limit" yaml:"body_limit"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// AuthConfig configures session and admin credentials.
type AuthConfig struct {
	// SessionSecret signs session tokens. Must be at least 32 characters.
	SessionSecret string `mapstructure:"session_secret" validate:"required,min=32" yaml:"session_secret"`

	// SessionDuration is the session token lifetime. Default: 168h
	SessionDuration time.Duration `mapstructure:"session_duration" validate:"required,gt=0" yaml:"session_duration"`

	// AdminSecret authorizes the admin metrics endpoint.
	// Env alias: ADMIN_SECRET. Empty disables the endpoint.
	AdminSecret string `mapstructure:"admin_secret" yaml:"admin_secret,omitempty"`

	// BootstrapEnabled controls whether new workspaces can be created
	// through the public bootstrap endpoint. Default: true
	BootstrapEnabled bool `mapstructure:"bootstrap_enabled" yaml:"bootstrap_enabled"`
}

// LimitsConfig configures storage quotas, size caps and rate rules.
type LimitsConfig struct {
	// WorkspaceQuotaBytes caps total content stored per workspace.
	// Env alias: MAX_WORKSPACE_STORAGE_BYTES. Default: 100MiB
	WorkspaceQuotaBytes bytesize.ByteSize `mapstructure:"workspace_quota_bytes" yaml:"workspace_quota_bytes"`

	// FileSizeLimit caps a single file's content. Default: 1MiB
	FileSizeLimit bytesize.ByteSize `mapstructure:"file_size_limit" yaml:"file_size_limit"`

	// Rate configures the request rate rules.
	Rate RateConfig `mapstructure:"rate" yaml:"rate"`
}

// RateConfig configures the request rate rules. Zero values take the
// documented defaults; there is no way to disable a rule from config.
type RateConfig struct {
	// BootstrapPerHour limits workspace creation per client IP. Default: 10
	BootstrapPerHour int `mapstructure:"bootstrap_per_hour" validate:"omitempty,min=1" yaml:"bootstrap_per_hour"`

	// APIKeyPerMinute limits API key creation per workspace. Default: 10
	APIKeyPerMinute int `mapstructure:"apikey_per_minute" validate:"omitempty,min=1" yaml:"apikey_per_minute"`

	// CapabilityPerMinute limits reads per capability key. Default: 1000
	CapabilityPerMinute int `mapstructure:"capability_per_minute" validate:"omitempty,min=1" yaml:"capability_per_minute"`

	// AppendPerMinute limits appends and heartbeats per capability key.
	// Default: 600
	AppendPerMinute int `mapstructure:"append_per_minute" validate:"omitempty,min=1" yaml:"append_per_minute"`
}

// WebhooksConfig configures outbound webhook delivery.
type WebhooksConfig struct {
	// Enabled controls whether the dispatcher runs. Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// DispatchInterval is how often the dispatcher polls for due deliveries.
	DispatchInterval time.Duration `mapstructure:"dispatch_interval" validate:"omitempty,gt=0" yaml:"dispatch_interval"`

	// DeliveryTimeout bounds a single delivery attempt. Default: 10s
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" validate:"omitempty,gt=0" yaml:"delivery_timeout"`

	// MaxAttempts is how many times a delivery is tried before it is
	// marked failed. Default: 5
	MaxAttempts int `mapstructure:"max_attempts" validate:"omitempty,min=1" yaml:"max_attempts"`

	// AllowHosts lists hostnames exempt from the private-address policy.
	// Intended for local integration testing only.
	AllowHosts []string `mapstructure:"allow_hosts" yaml:"allow_hosts,omitempty"`
}

// ExportsConfig configures archive jobs and artifact storage.
type ExportsConfig struct {
	// Enabled controls whether the export worker runs. Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Store selects the artifact backend: filesystem, s3 or memory.
	Store string `mapstructure:"store" validate:"required,oneof=filesystem s3 memory" yaml:"store"`

	// Filesystem configures the filesystem artifact backend.
	Filesystem FilesystemExportConfig `mapstructure:"filesystem" yaml:"filesystem"`

	// S3 configures the S3 artifact backend.
	S3 S3ExportConfig `mapstructure:"s3" yaml:"s3"`
}

// FilesystemExportConfig configures the filesystem artifact backend.
type FilesystemExportConfig struct {
	// Path is the directory archives are written to.
	Path string `mapstructure:"path" yaml:"path"`
}

// S3ExportConfig configures the S3 artifact backend.
type S3ExportConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Prefix is prepended to every artifact key.
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`

	// ForcePathStyle uses path-style addressing, required by most
	// S3-compatible servers.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`

	// AccessKeyID and SecretAccessKey, when both set, replace the AWS
	// default credential chain. Leave empty to use ambient credentials
	// (environment, instance profile).
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// MetricsConfig configures Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port serves a standalone /metrics scrape endpoint when non-zero.
	// The JSON snapshot is always available on the API listener.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection.
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// IsProduction reports whether the config targets a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Redacted returns a copy of the config with secrets masked, suitable
// for printing.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Auth.SessionSecret != "" {
		out.Auth.SessionSecret = "<redacted>"
	}
	if out.Auth.AdminSecret != "" {
		out.Auth.AdminSecret = "<redacted>"
	}
	if out.Database.Postgres.Password != "" {
		out.Database.Postgres.Password = "<redacted>"
	}
	if out.Exports.S3.SecretAccessKey != "" {
		out.Exports.S3.SecretAccessKey = "<redacted>"
	}
	return &out
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MARKLOG_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	// Read the configuration file if one exists. A missing file is fine:
	// env overrides and defaults still apply.
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  marklog config init\n\n"+
				"Or specify a custom config file:\n"+
				"  marklog <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  marklog config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600 because the file carries the session and admin secrets.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the MARKLOG_ prefix and underscores.
	// Example: MARKLOG_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("MARKLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvAliases(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/marklog/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvAliases binds the unprefixed environment aliases kept for
// compatibility with existing deployments.
func bindEnvAliases(v *viper.Viper) {
	// Secrets are commonly injected via environment; bind them explicitly
	// so they resolve even without a config file.
	_ = v.BindEnv("auth.session_secret")
	_ = v.BindEnv("auth.admin_secret", "MARKLOG_AUTH_ADMIN_SECRET", "ADMIN_SECRET")
	_ = v.BindEnv("limits.workspace_quota_bytes", "MARKLOG_LIMITS_WORKSPACE_QUOTA_BYTES", "MAX_WORKSPACE_STORAGE_BYTES")
	_ = v.BindEnv("env", "MARKLOG_ENV", "MP_ENV", "NODE_ENV")
	_ = v.BindEnv("exports.s3.access_key_id", "MARKLOG_EXPORTS_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("exports.s3.secret_access_key", "MARKLOG_EXPORTS_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")
}

// readConfigFile reads the configuration file if it exists.
// A missing file is not an error.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// Also check for os.PathError when an explicit config file doesn't exist
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "100MiB", "1GiB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "marklog")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "marklog")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
