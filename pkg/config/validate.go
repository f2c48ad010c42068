package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Validate checks the configuration for errors.
//
// Struct tags cover the field-level rules; cross-field rules (database
// backend, export store requirements) are checked explicitly.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	switch cfg.Exports.Store {
	case "filesystem":
		if cfg.Exports.Enabled && cfg.Exports.Filesystem.Path == "" {
			return errors.New("exports.filesystem.path is required for the filesystem store")
		}
	case "s3":
		if cfg.Exports.S3.Bucket == "" {
			return errors.New("exports.s3.bucket is required for the s3 store")
		}
		if cfg.Exports.S3.Region == "" {
			return errors.New("exports.s3.region is required for the s3 store")
		}
	}

	if cfg.Limits.FileSizeLimit > cfg.Limits.WorkspaceQuotaBytes {
		return errors.New("limits.file_size_limit cannot exceed limits.workspace_quota_bytes")
	}

	return nil
}

// describeFieldError turns a validator error into a config-flavored message.
func describeFieldError(fe validator.FieldError) string {
	// Namespace looks like "Config.Auth.SessionSecret"; drop the root and
	// lowercase to resemble the yaml keys.
	path := strings.TrimPrefix(fe.Namespace(), "Config.")
	path = strings.ToLower(path)

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", path)
	case "min":
		return fmt.Sprintf("%s must be at least %s", path, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", path, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", path, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", path, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", path, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", path, fe.Tag())
	}
}
