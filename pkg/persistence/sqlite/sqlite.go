// Package sqlite provides the embedded SQLite state store, used for single-node deployments
// and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dukex/jobflow/pkg/persistence/sqlbase"
)

// Dialect describes SQLite to the shared SQL store.
var Dialect = sqlbase.Dialect{
	Name:                   "sqlite",
	PositionalPlaceholders: true,
	TextTimestamps:         true,
	IsConflict:             isConflict,
}

// NewStore opens (or creates) the SQLite database at path, applies migrations and returns the
// state store. Use ":memory:" for an ephemeral database.
func NewStore(ctx context.Context, logger *slog.Logger, path string) (*sqlbase.Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite serialises writers; one connection also keeps a :memory: database alive.
	database.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		_, err = database.ExecContext(ctx, pragma)
		if err != nil {
			_ = database.Close()

			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, Dialect, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return sqlbase.NewStore(database, Dialect, logger), nil
}

func isConflict(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}

	return false
}
