package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marklog/marklog/internal/bytesize"
	"github.com/marklog/marklog/pkg/store"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
auth:
  session_secret: "0123456789abcdef0123456789abcdef"
database:
  type: sqlite
  sqlite:
    path: ":memory:"
env: test
`

func TestLoadMinimalConfig(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Limits.WorkspaceQuotaBytes != 100*bytesize.MiB {
		t.Errorf("workspace quota = %d", cfg.Limits.WorkspaceQuotaBytes)
	}
	if cfg.Limits.FileSizeLimit != 1*bytesize.MiB {
		t.Errorf("file size limit = %d", cfg.Limits.FileSizeLimit)
	}
	if cfg.Limits.Rate.BootstrapPerHour != 10 ||
		cfg.Limits.Rate.APIKeyPerMinute != 10 ||
		cfg.Limits.Rate.CapabilityPerMinute != 1000 {
		t.Errorf("rate defaults = %+v", cfg.Limits.Rate)
	}
	if cfg.Webhooks.DeliveryTimeout != 10*time.Second || cfg.Webhooks.MaxAttempts != 5 {
		t.Errorf("webhook defaults = %+v", cfg.Webhooks)
	}
	if cfg.Auth.SessionDuration != 7*24*time.Hour {
		t.Errorf("session duration = %v", cfg.Auth.SessionDuration)
	}
	if cfg.Database.Type != store.DatabaseTypeSQLite {
		t.Errorf("database type = %s", cfg.Database.Type)
	}
	if cfg.IsProduction() {
		t.Error("test env reported as production")
	}
}

func TestLoadParsesHumanReadableValues(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
server:
  port: 9000
  body_limit: "4MiB"
  request_timeout: "45s"
auth:
  session_secret: "0123456789abcdef0123456789abcdef"
limits:
  workspace_quota_bytes: "250MiB"
  file_size_limit: 524288
database:
  type: sqlite
  sqlite:
    path: ":memory:"
env: development
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.BodyLimit != 4*bytesize.MiB {
		t.Errorf("body limit = %d", cfg.Server.BodyLimit)
	}
	if cfg.Server.RequestTimeout != 45*time.Second {
		t.Errorf("request timeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Limits.WorkspaceQuotaBytes != 250*bytesize.MiB {
		t.Errorf("quota = %d", cfg.Limits.WorkspaceQuotaBytes)
	}
	if cfg.Limits.FileSizeLimit != 512*bytesize.KiB {
		t.Errorf("file size limit = %d", cfg.Limits.FileSizeLimit)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MARKLOG_LOGGING_LEVEL", "DEBUG")

	cfg, err := Load(writeConfigFile(t, `
logging:
  level: INFO
auth:
  session_secret: "0123456789abcdef0123456789abcdef"
database:
  type: sqlite
  sqlite:
    path: ":memory:"
env: test
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("level = %s, want DEBUG from env", cfg.Logging.Level)
	}
}

func TestEnvAliases(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "super-admin")
	t.Setenv("MAX_WORKSPACE_STORAGE_BYTES", "52428800")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Auth.AdminSecret != "super-admin" {
		t.Errorf("admin secret = %q", cfg.Auth.AdminSecret)
	}
	if cfg.Limits.WorkspaceQuotaBytes != 50*bytesize.MiB {
		t.Errorf("quota = %d", cfg.Limits.WorkspaceQuotaBytes)
	}
	if !cfg.IsProduction() {
		t.Errorf("env = %q, want production from NODE_ENV", cfg.Env)
	}
}

func TestEnvS3Credentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIATEST")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "shhh-not-really")

	cfg, err := Load(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Exports.S3.AccessKeyID != "AKIATEST" {
		t.Errorf("access key id = %q", cfg.Exports.S3.AccessKeyID)
	}
	if cfg.Exports.S3.SecretAccessKey != "shhh-not-really" {
		t.Errorf("secret access key = %q", cfg.Exports.S3.SecretAccessKey)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("MARKLOG_AUTH_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != EnvDevelopment {
		t.Errorf("env = %q, want development default", cfg.Env)
	}
	if cfg.Database.SQLite.Path == "" {
		t.Error("sqlite path default not applied")
	}
}

func TestGetDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Auth.SessionSecret) < 32 {
		t.Errorf("generated secret too short: %d chars", len(cfg.Auth.SessionSecret))
	}
	if !cfg.Auth.BootstrapEnabled {
		t.Error("bootstrap should default to enabled")
	}
	if !cfg.Webhooks.Enabled || !cfg.Exports.Enabled {
		t.Error("background workers should default to enabled")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 9999
	cfg.Database.SQLite.Path = "/tmp/marklog-test.db"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load saved config: %v", err)
	}
	if loaded.Server.Port != 9999 {
		t.Errorf("port = %d after round trip", loaded.Server.Port)
	}
	if loaded.Database.SQLite.Path != "/tmp/marklog-test.db" {
		t.Errorf("sqlite path = %q after round trip", loaded.Database.SQLite.Path)
	}
}

func TestRedacted(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Auth.AdminSecret = "topsecret"
	cfg.Database.Postgres.Password = "hunter2"
	cfg.Exports.S3.SecretAccessKey = "aws-secret"

	red := cfg.Redacted()
	if red.Auth.SessionSecret != "<redacted>" || red.Auth.AdminSecret != "<redacted>" {
		t.Errorf("auth secrets not redacted: %+v", red.Auth)
	}
	if red.Database.Postgres.Password != "<redacted>" {
		t.Errorf("postgres password not redacted")
	}
	if red.Exports.S3.SecretAccessKey != "<redacted>" {
		t.Errorf("s3 secret not redacted")
	}
	// Original must be untouched.
	if cfg.Auth.AdminSecret != "topsecret" {
		t.Error("Redacted mutated the original")
	}
}
