// Package database provides the SQLite store behind pipeline run history.
//
// This package manages:
//   - Database connection with WAL mode so readers don't block the recorder
//   - Schema migrations read from an fs.FS (embedded by package migrations)
//   - Connection lifecycle and health checks
//
// Only run summaries live here; bus events are never persisted.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//	repo := pipeline.NewSQLiteRepository(db.DB)
//
// Migration Strategy:
//
// Migrations are additive-only:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Each migration file has both .up.sql and .down.sql
//   - Tables are declared STRICT
package database
