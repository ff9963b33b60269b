package blog

import (
	"embed"
	"io/fs"

	"github.com/marshallshelly/blogstore/pkg/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationFS returns the embedded schema migrations.
func MigrationFS() fs.FS {
	return migrationFiles
}

// Migrations loads the embedded schema migrations in version order.
func Migrations() ([]migration.Migration, error) {
	return migration.Load(migrationFiles, "migrations")
}
