package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"nikkei-quiz-service/internal/config"
	"nikkei-quiz-service/internal/infra/relational"
	"nikkei-quiz-service/internal/infra/relational/migrations"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the sqlite or postgres backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var db *bun.DB
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		if db, err = relational.OpenSQLite(cfg.SQLite.Path); err != nil {
			return err
		}
	case config.BackendPostgres:
		db = relational.OpenPostgres(cfg.Postgres.URL)
	default:
		return fmt.Errorf("storage backend %q has no schema to migrate", cfg.Storage.Backend)
	}
	defer db.Close()

	return migrations.Run(ctx, db)
}
