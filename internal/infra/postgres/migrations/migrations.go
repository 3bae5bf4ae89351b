package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema change; bun names each one after the file
// that registers it.
var Migrations = migrate.NewMigrations()
