package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marklog/marklog/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample marklog configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/marklog/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  marklog init

  # Initialize with custom path
  marklog init --config /etc/marklog/config.yaml

  # Force overwrite existing config
  marklog init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	cfg := config.GetDefaultConfig()
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: marklog start")
	fmt.Printf("  3. Or specify custom config: marklog start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random session secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Println("    export MARKLOG_AUTH_SESSION_SECRET=$(openssl rand -hex 32)")

	return nil
}
