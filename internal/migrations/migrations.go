package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry of schema migrations applied by `gridauth db migrate`.
var Migrations = migrate.NewMigrations()
