// Package admin implements operator subcommands that work directly
// against the marklog database.
package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marklog/marklog/pkg/config"
	"github.com/marklog/marklog/pkg/store"
)

// Cmd is the admin subcommand.
var Cmd = &cobra.Command{
	Use:   "admin",
	Short: "Server administration",
	Long: `Administer a marklog installation directly through its database.

These commands open the database configured in the config file, so they
work whether or not the server is running. Point them at the same config
the server uses.

Subcommands:
  workspaces  Inspect and manage workspaces
  keys        Inspect and revoke credentials`,
}

func init() {
	Cmd.AddCommand(workspacesCmd)
	Cmd.AddCommand(keysCmd)
}

// openStore loads configuration and opens the database.
// The caller must Close() the returned store.
func openStore(cmd *cobra.Command) (*store.GORMStore, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return nil, err
	}
	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

// emptyOr returns s, or fallback when s is empty.
func emptyOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
