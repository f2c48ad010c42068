package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/pkg/config"
	"github.com/marklog/marklog/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the marklog database.

This command applies pending database migrations to the configured database
(SQLite or PostgreSQL). It is required after upgrading marklog when schema
changes have been made.

Examples:
  # Run migrations with default config
  marklog migrate

  # Run migrations with custom config
  marklog migrate --config /etc/marklog/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", "type", cfg.Database.Type)

	// Opening the store triggers auto-migration
	ctx := context.Background()
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = st.Close() }()

	// Verify the migration worked by checking if we can query workspaces
	_, err = st.ListWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (database type: %s)\n", cfg.Database.Type)
	return nil
}
