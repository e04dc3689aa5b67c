package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations, one directory per
// dialect (migrations/postgres, migrations/sqlite). Used by the migrate runner
// (cmd/migrate, authctl migrate and STORE_AUTO_MIGRATE) to apply migrations.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS

// MigrationDir returns the embedded directory holding migrations for driver
// ("postgres" or "sqlite").
func MigrationDir(driver string) string {
	return "migrations/" + driver
}
