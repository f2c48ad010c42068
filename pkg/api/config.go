package api

import "time"

// APIConfig configures the HTTP server surface. It is a flattened view
// of the service configuration so the api package does not depend on the
// config loader.
type APIConfig struct {
	// Host and Port form the listen address.
	Host string
	Port int

	// RequestTimeout bounds each request; ShutdownTimeout bounds the
	// graceful drain on stop.
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// BodyLimit caps any request body in bytes.
	BodyLimit int64

	// QuotaBytes is the per-workspace storage budget; FileSizeLimit the
	// per-file content cap (the X-Content-Size-Limit value).
	QuotaBytes    int64
	FileSizeLimit int64

	// AdminSecret guards /api/v1/admin; empty disables admin routes.
	AdminSecret string

	// BootstrapEnabled is the workspace-creation kill switch.
	BootstrapEnabled bool

	// Production disables test-only fixtures.
	Production bool
}

// applyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.BodyLimit <= 0 {
		c.BodyLimit = 2 << 20
	}
	if c.QuotaBytes <= 0 {
		c.QuotaBytes = 100 << 20
	}
	if c.FileSizeLimit <= 0 {
		c.FileSizeLimit = 1 << 20
	}
}
