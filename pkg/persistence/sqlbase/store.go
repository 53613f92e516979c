package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/jobflow/pkg/persistence"
)

// querier is the subset of *sql.Tx the repositories need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements persistence.Store on top of database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// NewStore wraps an opened, migrated database.
func NewStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "store", "dialect", dialect.Name),
	}
}

// Do runs fn inside a transaction, committing on success and rolling back on error or panic.
func (s *Store) Do(ctx context.Context, fn func(uow persistence.UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false

	defer func() {
		if committed {
			return
		}

		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
	}()

	err = fn(&unitOfWork{q: tx, dialect: s.dialect, logger: s.logger})
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		if s.dialect.conflict(err) {
			return fmt.Errorf("failed to commit transaction: %w: %v", persistence.ErrConflict, err)
		}

		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	committed = true

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

type unitOfWork struct {
	q       querier
	dialect Dialect
	logger  *slog.Logger
}

func (u *unitOfWork) Workflows() persistence.WorkflowRepository {
	return &workflowRepository{q: u.q, dialect: u.dialect, logger: u.logger}
}

func (u *unitOfWork) Jobs() persistence.JobRepository {
	return &jobRepository{q: u.q, dialect: u.dialect, logger: u.logger}
}

func (u *unitOfWork) Events() persistence.EventRepository {
	return &eventRepository{q: u.q, dialect: u.dialect, logger: u.logger}
}
