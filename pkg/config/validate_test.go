package config

import (
	"strings"
	"testing"

	"github.com/marklog/marklog/internal/bytesize"
)

// validConfig returns a config that passes validation; tests mutate one
// field at a time.
func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Database.SQLite.Path = ":memory:"
	cfg.Env = EnvTest
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "short session secret",
			mutate:  func(cfg *Config) { cfg.Auth.SessionSecret = "short" },
			wantErr: "auth.sessionsecret must be at least 32",
		},
		{
			name:    "missing session secret",
			mutate:  func(cfg *Config) { cfg.Auth.SessionSecret = "" },
			wantErr: "required",
		},
		{
			name:    "bad log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "VERBOSE" },
			wantErr: "must be one of",
		},
		{
			name:    "bad log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "must be one of",
		},
		{
			name:    "bad env",
			mutate:  func(cfg *Config) { cfg.Env = "staging" },
			wantErr: "must be one of",
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.Server.Port = 70000 },
			wantErr: "at most 65535",
		},
		{
			name:    "bad export store",
			mutate:  func(cfg *Config) { cfg.Exports.Store = "ftp" },
			wantErr: "must be one of",
		},
		{
			name: "s3 store without bucket",
			mutate: func(cfg *Config) {
				cfg.Exports.Store = "s3"
				cfg.Exports.S3.Region = "us-east-1"
			},
			wantErr: "exports.s3.bucket is required",
		},
		{
			name: "s3 store without region",
			mutate: func(cfg *Config) {
				cfg.Exports.Store = "s3"
				cfg.Exports.S3.Bucket = "artifacts"
			},
			wantErr: "exports.s3.region is required",
		},
		{
			name: "filesystem store without path",
			mutate: func(cfg *Config) {
				cfg.Exports.Store = "filesystem"
				cfg.Exports.Filesystem.Path = ""
			},
			wantErr: "exports.filesystem.path is required",
		},
		{
			name: "file size limit above quota",
			mutate: func(cfg *Config) {
				cfg.Limits.FileSizeLimit = 200 * bytesize.MiB
				cfg.Limits.WorkspaceQuotaBytes = 100 * bytesize.MiB
			},
			wantErr: "cannot exceed",
		},
		{
			name:    "sqlite without path",
			mutate:  func(cfg *Config) { cfg.Database.SQLite.Path = "" },
			wantErr: "sqlite path is required",
		},
		{
			name:    "negative sample rate",
			mutate:  func(cfg *Config) { cfg.Telemetry.SampleRate = -0.5 },
			wantErr: "at least",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
