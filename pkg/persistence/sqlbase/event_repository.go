package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
)

const eventColumns = `id, name, model_kind, model_id, exception, output, occurred_at`

type eventRepository struct {
	q       querier
	dialect Dialect
	logger  *slog.Logger
}

func (r *eventRepository) Add(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event id: %w", err)
		}

		event.ID = id.String()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	query := r.dialect.Rebind(`
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)

	_, err := r.q.ExecContext(ctx, query,
		event.ID,
		event.Name,
		string(event.ModelKind),
		event.ModelID,
		nullString(event.Exception),
		nullString(event.Output),
		r.dialect.timeArg(event.Timestamp),
	)
	if err != nil {
		if r.dialect.conflict(err) {
			return fmt.Errorf("failed to add event %s: %w: %v", event.ID, persistence.ErrConflict, err)
		}

		return fmt.Errorf("failed to add event %s: %w", event.ID, err)
	}

	return nil
}

func (r *eventRepository) Get(ctx context.Context, filter persistence.EventFilter) (*models.Event, error) {
	where := eventWhere(filter)
	query := r.dialect.Rebind(`SELECT ` + eventColumns + ` FROM events` + where.whereClause() +
		` ORDER BY occurred_at, id LIMIT 1`)

	event, err := scanEvent(r.q.QueryRowContext(ctx, query, where.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

func (r *eventRepository) List(ctx context.Context, filter persistence.EventFilter) ([]*models.Event, error) {
	where := eventWhere(filter)
	query := `SELECT ` + eventColumns + ` FROM events` + where.whereClause() + ` ORDER BY occurred_at, id`

	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, r.dialect.Rebind(query), where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.WarnContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	events := make([]*models.Event, 0)

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

func eventWhere(filter persistence.EventFilter) *clauseBuilder {
	builder := &clauseBuilder{}
	builder.whereString("id", filter.ID)
	builder.whereString("name", filter.Name)
	builder.whereString("model_kind", string(filter.ModelKind))
	builder.whereString("model_id", filter.ModelID)

	return builder
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		event      models.Event
		modelKind  string
		exception  sql.NullString
		output     sql.NullString
		occurredAt dbTime
	)

	err := row.Scan(&event.ID, &event.Name, &modelKind, &event.ModelID, &exception, &output, &occurredAt)
	if err != nil {
		return nil, err
	}

	event.ModelKind = models.ModelKind(modelKind)
	event.Exception = exception.String
	event.Output = output.String
	event.Timestamp = occurredAt.Time

	return &event, nil
}
