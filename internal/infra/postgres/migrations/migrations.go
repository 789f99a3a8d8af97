package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema of the question bank and player store.
var Migrations = migrate.NewMigrations()
