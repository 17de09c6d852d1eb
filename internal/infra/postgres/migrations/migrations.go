// Package migrations holds the Postgres schema, applied with bun's migrator.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the ordered set registered by the files in this package.
var Migrations = migrate.NewMigrations()
