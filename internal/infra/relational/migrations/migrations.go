// Package migrations holds the schema of the relational backends.
package migrations

import (
	"context"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// Run applies every pending migration.
func Run(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Printf("[MIGRATE] schema up to date")
		return nil
	}
	log.Printf("[MIGRATE] applied %s", group)
	return nil
}
