// cmd/permitctl/migrate_commands.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"permit-workers/internal/common/config"
	"permit-workers/internal/common/database"
)

func newMigrateCommand() *cobra.Command {
	var configPath string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	migrateCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path")

	connect := func(ctx context.Context) (*database.PostgresClient, error) {
		var (
			cfg *config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.LoadFromFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return nil, err
		}
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("postgres unreachable: %w", err)
		}
		return pg, nil
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			pg, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			pg, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pg.Close()
			return database.MigrationStatus(ctx, pg.DB)
		},
	})

	return migrateCmd
}
