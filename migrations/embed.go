// Package migrations embeds SQL migration files into the binary.
//
// Importing the package for side effects registers the files with the
// database package, so the orchestra runs migrations without the SQL files
// being present on the filesystem.
package migrations

import (
	"embed"

	"github.com/nerrad567/device-orchestra/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// FS exposes the embedded files for tests that migrate a scratch database.
func FS() embed.FS {
	return migrationsFS
}

func init() {
	database.RegisterMigrations(migrationsFS, ".")
}
