package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marklog/marklog/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the marklog configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  marklog config validate

  # Validate specific config file
  marklog config validate --config /etc/marklog/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	if cfg.Auth.AdminSecret == "" {
		warnings = append(warnings, "Admin secret not configured - admin endpoints will be disabled")
	}
	if !cfg.Auth.BootstrapEnabled {
		warnings = append(warnings, "Bootstrap disabled - new workspaces cannot be created")
	}
	if !cfg.Webhooks.Enabled {
		warnings = append(warnings, "Webhook dispatcher disabled - deliveries will queue but never send")
	}
	if cfg.Exports.Enabled && cfg.Exports.Store == "s3" && cfg.Exports.S3.Bucket == "" {
		warnings = append(warnings, "Export store is s3 but no bucket configured")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:   %s\n", cfg.Database.Type)
	fmt.Printf("  API port:        %d\n", cfg.Server.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)
	fmt.Printf("  Workspace quota: %s\n", cfg.Limits.WorkspaceQuotaBytes)
	fmt.Printf("  Export store:    %s\n", cfg.Exports.Store)

	return nil
}
