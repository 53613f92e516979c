package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
)

const workflowColumns = `id, name, source_path, file_exists, fingerprint, modified_since_last_load, active, created_at, updated_at`

type workflowRepository struct {
	q       querier
	dialect Dialect
	logger  *slog.Logger
}

func (r *workflowRepository) Add(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	query := r.dialect.Rebind(`
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)

	_, err := r.q.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.SourcePath,
		workflow.FileExists,
		workflow.Fingerprint,
		workflow.ModifiedSinceLastLoad,
		workflow.Active,
		r.dialect.timeArg(workflow.CreatedAt),
		r.dialect.timeArg(workflow.UpdatedAt),
	)
	if err != nil {
		if r.dialect.conflict(err) {
			return persistence.NewWorkflowError("Add", workflow.ID, fmt.Errorf("%w: %v", persistence.ErrConflict, err))
		}

		return persistence.NewWorkflowError("Add", workflow.ID, err)
	}

	return nil
}

func (r *workflowRepository) Get(ctx context.Context, filter persistence.WorkflowFilter) (*models.Workflow, error) {
	where := workflowWhere(&clauseBuilder{}, filter)
	query := r.dialect.Rebind(`SELECT ` + workflowColumns + ` FROM workflows` + where.whereClause() + ` ORDER BY name LIMIT 1`)

	workflow, err := scanWorkflow(r.q.QueryRowContext(ctx, query, where.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return workflow, nil
}

func (r *workflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	where := workflowWhere(&clauseBuilder{}, filter)
	query := r.dialect.Rebind(`SELECT ` + workflowColumns + ` FROM workflows` + where.whereClause() + ` ORDER BY name`)

	rows, err := r.q.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.WarnContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}

func (r *workflowRepository) Update(ctx context.Context, filter persistence.WorkflowFilter, changes persistence.WorkflowChanges) (int64, error) {
	builder := &clauseBuilder{}

	if changes.SourcePath != nil {
		builder.set("source_path", *changes.SourcePath)
	}

	if changes.FileExists != nil {
		builder.set("file_exists", *changes.FileExists)
	}

	if changes.Fingerprint != nil {
		builder.set("fingerprint", *changes.Fingerprint)
	}

	if changes.ModifiedSinceLastLoad != nil {
		builder.set("modified_since_last_load", *changes.ModifiedSinceLastLoad)
	}

	if changes.Active != nil {
		builder.set("active", *changes.Active)
	}

	builder.set("updated_at", r.dialect.timeArg(time.Now()))

	workflowWhere(builder, filter)

	if len(builder.wheres) == 0 {
		return 0, persistence.NewWorkflowError("Update", "", persistence.ErrEmptyFilter)
	}

	query := r.dialect.Rebind(`UPDATE workflows SET ` + builder.setClause() + builder.whereClause())

	result, err := r.q.ExecContext(ctx, query, builder.args...)
	if err != nil {
		if r.dialect.conflict(err) {
			return 0, persistence.NewWorkflowError("Update", filter.ID, fmt.Errorf("%w: %v", persistence.ErrConflict, err))
		}

		return 0, persistence.NewWorkflowError("Update", filter.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected, nil
}

func (r *workflowRepository) Remove(ctx context.Context, workflow *models.Workflow) error {
	result, err := r.q.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM workflows WHERE id = $1`), workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("Remove", workflow.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Remove", workflow.ID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func workflowWhere(builder *clauseBuilder, filter persistence.WorkflowFilter) *clauseBuilder {
	builder.whereString("id", filter.ID)
	builder.whereString("name", filter.Name)
	builder.whereString("source_path", filter.SourcePath)
	builder.whereBool("active", filter.Active)

	return builder
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow  models.Workflow
		createdAt dbTime
		updatedAt dbTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.SourcePath,
		&workflow.FileExists,
		&workflow.Fingerprint,
		&workflow.ModifiedSinceLastLoad,
		&workflow.Active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.CreatedAt = createdAt.Time
	workflow.UpdatedAt = updatedAt.Time

	return &workflow, nil
}
