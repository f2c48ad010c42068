package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/internal/telemetry"
	"github.com/marklog/marklog/pkg/api"
	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/auth"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/config"
	"github.com/marklog/marklog/pkg/export"
	"github.com/marklog/marklog/pkg/maintenance"
	"github.com/marklog/marklog/pkg/metrics"
	"github.com/marklog/marklog/pkg/orchestration"
	"github.com/marklog/marklog/pkg/ratelimit"
	"github.com/marklog/marklog/pkg/store"
	"github.com/marklog/marklog/pkg/webhook"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the marklog server",
	Long: `Start the marklog server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/marklog/config.yaml.

Examples:
  # Start in background (default)
  marklog start

  # Start in foreground
  marklog start --foreground

  # Start with custom config file
  marklog start --config /etc/marklog/config.yaml

  # Start with environment variable overrides
  MARKLOG_LOGGING_LEVEL=DEBUG marklog start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/marklog/marklog.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/marklog/marklog.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "marklog",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "marklog",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("Marklog - Markdown file service for multi-agent coordination")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics (if enabled)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Initialize the store (runs schema migration on open)
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()
	logger.Info("Store initialized", "type", cfg.Database.Type)

	// Session token service
	sessions, err := auth.NewService(auth.Config{
		Secret:   cfg.Auth.SessionSecret,
		Duration: cfg.Auth.SessionDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session service: %w", err)
	}

	// Core services over the store
	resolver := capability.NewResolver(st)
	engine := orchestration.New(st)
	emitter := webhook.NewEmitter(st)
	policy := webhook.NewPolicy(cfg.Webhooks.AllowHosts)

	recorder := audit.NewRecorder(st, nil)
	defer recorder.Close()

	limits := ratelimit.NewSet(&ratelimit.Config{
		BootstrapPerHour:    cfg.Limits.Rate.BootstrapPerHour,
		KeyCreatePerMinute:  cfg.Limits.Rate.APIKeyPerMinute,
		CapabilityPerMinute: cfg.Limits.Rate.CapabilityPerMinute,
		AppendPerMinute:     cfg.Limits.Rate.AppendPerMinute,
	})
	defer limits.Close()

	// Export artifact backend
	artifacts, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize export store: %w", err)
	}
	exports := export.NewService(st, artifacts)
	if cfg.Exports.Enabled {
		exports.Start()
		defer exports.Stop()
		logger.Info("Export worker started", "store", cfg.Exports.Store)
	} else {
		logger.Info("Export worker disabled")
	}

	// Webhook dispatcher
	if cfg.Webhooks.Enabled {
		dispatcher := webhook.NewDispatcherWith(st, &webhook.DispatcherConfig{
			PollInterval: cfg.Webhooks.DispatchInterval,
			Timeout:      cfg.Webhooks.DeliveryTimeout,
			MaxAttempts:  cfg.Webhooks.MaxAttempts,
		})
		dispatcher.Start()
		defer dispatcher.Stop()
		logger.Info("Webhook dispatcher started", "interval", cfg.Webhooks.DispatchInterval)
	} else {
		logger.Info("Webhook dispatcher disabled")
	}

	// Background maintenance (claim sweep, soft-delete purge, audit prune)
	janitor := maintenance.NewManager(st, emitter, nil)
	janitor.Start()
	defer janitor.Stop()

	// API server
	apiServer := api.NewServer(api.APIConfig{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		RequestTimeout:   cfg.Server.RequestTimeout,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
		BodyLimit:        int64(cfg.Server.BodyLimit),
		QuotaBytes:       int64(cfg.Limits.WorkspaceQuotaBytes),
		FileSizeLimit:    int64(cfg.Limits.FileSizeLimit),
		AdminSecret:      cfg.Auth.AdminSecret,
		BootstrapEnabled: cfg.Auth.BootstrapEnabled,
		Production:       cfg.IsProduction(),
	}, api.Options{
		Store:    st,
		Resolver: resolver,
		Sessions: sessions,
		Engine:   engine,
		Emitter:  emitter,
		Policy:   policy,
		Exports:  exports,
		Audit:    recorder,
		Limits:   limits,
		Service:  metrics.NewServiceMetrics(),
		HTTP:     metrics.NewHTTPMetrics(),
	})
	logger.Info("API server configured", "addr", apiServer.Addr())

	// Standalone Prometheus scrape endpoint
	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Metrics.Port)),
			Handler: mux,
		}
		go func() {
			logger.Info("Metrics endpoint listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start the API server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// newArtifactStore builds the export artifact backend selected in config.
func newArtifactStore(ctx context.Context, cfg *config.Config) (export.ArtifactStore, error) {
	switch cfg.Exports.Store {
	case "memory":
		return export.NewMemoryStore(), nil
	case "filesystem":
		return export.NewFilesystemStore(cfg.Exports.Filesystem.Path)
	case "s3":
		return export.NewS3StoreFromConfig(ctx, export.S3Config{
			Bucket:          cfg.Exports.S3.Bucket,
			Region:          cfg.Exports.S3.Region,
			Endpoint:        cfg.Exports.S3.Endpoint,
			Prefix:          cfg.Exports.S3.Prefix,
			ForcePathStyle:  cfg.Exports.S3.ForcePathStyle,
			AccessKeyID:     cfg.Exports.S3.AccessKeyID,
			SecretAccessKey: cfg.Exports.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown export store type: %s", cfg.Exports.Store)
	}
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(stateDir, "marklog.pid")
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				// Check if process is still running
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("marklog is already running (PID %d)\nUse 'marklog stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(stateDir, "marklog.log")
	}

	// Get the executable path
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build arguments for the daemon process
	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	// Create the daemon process
	cmd := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// Start the daemon
	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("Marklog started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'marklog stop' to stop the server")
	fmt.Println("Use 'marklog status' to check server status")

	return nil
}
