package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marklog/marklog/internal/cli/output"
	"github.com/marklog/marklog/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current marklog configuration.

Secrets are redacted. By default outputs YAML format. Use --output to
change format.

Examples:
  # Show default config as YAML
  marklog config show

  # Show as JSON
  marklog config show --output json

  # Show specific config file
  marklog config show --config /etc/marklog/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Parse output format
	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	// Print configuration with secrets masked
	redacted := cfg.Redacted()
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, redacted)
	default:
		return output.PrintYAML(os.Stdout, redacted)
	}
}
