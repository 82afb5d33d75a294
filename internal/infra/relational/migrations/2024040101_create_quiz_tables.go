package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"nikkei-quiz-service/internal/infra/relational"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			models := []interface{}{
				(*relational.UserModel)(nil),
				(*relational.StatsModel)(nil),
				(*relational.AttemptModel)(nil),
			}
			for _, model := range models {
				if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
					return err
				}
			}
			_, err := db.NewCreateIndex().
				Model((*relational.AttemptModel)(nil)).
				Index("quiz_results_user_answered_idx").
				Column("user_id", "answered_at").
				IfNotExists().
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			models := []interface{}{
				(*relational.AttemptModel)(nil),
				(*relational.StatsModel)(nil),
				(*relational.UserModel)(nil),
			}
			for _, model := range models {
				if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
