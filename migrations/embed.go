// Package migrations embeds SQL migration files into the binary.
//
// This allows propcore to run migrations without needing the SQL files
// present on the filesystem.
package migrations

import (
	"embed"

	"github.com/nerrad567/propcore/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
