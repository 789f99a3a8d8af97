package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2024112204_constrain_questions_and_categories.sql
var constrainQuestionsAndCategoriesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, constrainQuestionsAndCategoriesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				DROP INDEX IF EXISTS categories_name_key;
				ALTER TABLE categories ALTER COLUMN id DROP DEFAULT;
				DROP SEQUENCE IF EXISTS categories_id_seq;
				ALTER TABLE questions DROP CONSTRAINT IF EXISTS questions_difficulty_check;`)
			return err
		},
	)
}
