// Package postgresql provides the PostgreSQL state store.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/dukex/jobflow/pkg/persistence/sqlbase"
)

// integrityViolationClass is the SQLSTATE class for integrity constraint violations.
const integrityViolationClass = "23"

// Dialect describes PostgreSQL to the shared SQL store.
var Dialect = sqlbase.Dialect{
	Name:       "postgres",
	IsConflict: isConflict,
}

// NewStore opens a PostgreSQL database, applies migrations and returns the state store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*sqlbase.Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
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
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == integrityViolationClass
	}

	return false
}
