package config

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/marklog/marklog/internal/bytesize"
	"github.com/marklog/marklog/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyLoggingDefaults(&cfg.Logging)
	applyAuthDefaults(&cfg.Auth)
	applyLimitsDefaults(&cfg.Limits)
	applyWebhooksDefaults(&cfg.Webhooks)
	applyExportsDefaults(&cfg.Exports)
	applyMetricsDefaults(&cfg.Metrics)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.Env == "" {
		cfg.Env = EnvDevelopment
	}
	cfg.Env = strings.ToLower(cfg.Env)
}

// applyServerDefaults sets HTTP listener defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.BodyLimit == 0 {
		cfg.BodyLimit = 2 * bytesize.MiB
	}
}

// applyDatabaseDefaults sets persistence defaults.
func applyDatabaseDefaults(cfg *store.Config) {
	cfg.ApplyDefaults()
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyAuthDefaults sets credential defaults. The session secret has no
// default: an unset secret fails validation rather than silently signing
// tokens with a published value.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = 7 * 24 * time.Hour
	}
}

// applyLimitsDefaults sets quota and rate rule defaults.
func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.WorkspaceQuotaBytes == 0 {
		cfg.WorkspaceQuotaBytes = 100 * bytesize.MiB
	}
	if cfg.FileSizeLimit == 0 {
		cfg.FileSizeLimit = 1 * bytesize.MiB
	}
	if cfg.Rate.BootstrapPerHour == 0 {
		cfg.Rate.BootstrapPerHour = 10
	}
	if cfg.Rate.APIKeyPerMinute == 0 {
		cfg.Rate.APIKeyPerMinute = 10
	}
	if cfg.Rate.CapabilityPerMinute == 0 {
		cfg.Rate.CapabilityPerMinute = 1000
	}
	if cfg.Rate.AppendPerMinute == 0 {
		cfg.Rate.AppendPerMinute = 600
	}
}

// applyWebhooksDefaults sets delivery defaults.
func applyWebhooksDefaults(cfg *WebhooksConfig) {
	if cfg.DispatchInterval == 0 {
		cfg.DispatchInterval = time.Second
	}
	if cfg.DeliveryTimeout == 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
}

// applyExportsDefaults sets export worker defaults.
func applyExportsDefaults(cfg *ExportsConfig) {
	if cfg.Store == "" {
		cfg.Store = "filesystem"
	}
	if cfg.Store == "filesystem" && cfg.Filesystem.Path == "" {
		cfg.Filesystem.Path = "/var/lib/marklog/exports"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics).
	// Port stays zero unless set: the JSON snapshot is served on the
	// API listener, a standalone scrape port is optional.
	_ = cfg
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// A fresh random session secret is generated so the result passes
// validation and 'marklog config init' writes a usable file.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Auth: AuthConfig{
			SessionSecret:    generateSecret(),
			BootstrapEnabled: true,
		},
		Database: store.Config{
			Type: store.DatabaseTypeSQLite, // Default to SQLite for single-node
		},
		Webhooks: WebhooksConfig{Enabled: true},
		Exports:  ExportsConfig{Enabled: true},
	}

	ApplyDefaults(cfg)
	return cfg
}

// generateSecret returns a random 64-character hex string.
func generateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}
