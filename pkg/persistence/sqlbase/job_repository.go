package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
)

const jobColumns = `id, workflow_id, name, position, operator_id, definition, depends_on, dependency_pattern, ` +
	`run_if_pattern_match, active, status, next_fire_time, created_at, updated_at`

type jobRepository struct {
	q       querier
	dialect Dialect
	logger  *slog.Logger
}

func (r *jobRepository) Add(ctx context.Context, job *models.Job) error {
	definition, err := json.Marshal(job.Definition)
	if err != nil {
		return persistence.NewJobError("Add", job.WorkflowID, job.ID, fmt.Errorf("failed to marshal definition: %w", err))
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	job.UpdatedAt = now

	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	query := r.dialect.Rebind(`
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`)

	_, err = r.q.ExecContext(ctx, query,
		job.ID,
		job.WorkflowID,
		job.Name,
		job.Position,
		job.OperatorID,
		string(definition),
		nullString(job.DependsOn),
		nullString(job.DependencyPattern),
		job.RunIfPatternMatch,
		job.Active,
		string(job.Status),
		r.dialect.nullTimeArg(job.NextFireTime),
		r.dialect.timeArg(job.CreatedAt),
		r.dialect.timeArg(job.UpdatedAt),
	)
	if err != nil {
		if r.dialect.conflict(err) {
			return persistence.NewJobError("Add", job.WorkflowID, job.ID, fmt.Errorf("%w: %v", persistence.ErrConflict, err))
		}

		return persistence.NewJobError("Add", job.WorkflowID, job.ID, err)
	}

	return nil
}

func (r *jobRepository) Get(ctx context.Context, filter persistence.JobFilter) (*models.Job, error) {
	where := jobWhere(&clauseBuilder{}, filter)
	query := r.dialect.Rebind(`SELECT ` + jobColumns + ` FROM jobs` + where.whereClause() +
		` ORDER BY workflow_id, position LIMIT 1`)

	job, err := scanJob(r.q.QueryRowContext(ctx, query, where.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (r *jobRepository) List(ctx context.Context, filter persistence.JobFilter) ([]*models.Job, error) {
	where := jobWhere(&clauseBuilder{}, filter)
	query := r.dialect.Rebind(`SELECT ` + jobColumns + ` FROM jobs` + where.whereClause() +
		` ORDER BY workflow_id, position, name`)

	rows, err := r.q.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.WarnContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	jobs := make([]*models.Job, 0)

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}

func (r *jobRepository) Update(ctx context.Context, filter persistence.JobFilter, changes persistence.JobChanges) (int64, error) {
	builder := &clauseBuilder{}

	if changes.Position != nil {
		builder.set("position", *changes.Position)
	}

	if changes.OperatorID != nil {
		builder.set("operator_id", *changes.OperatorID)
	}

	if changes.Definition != nil {
		definition, err := json.Marshal(changes.Definition)
		if err != nil {
			return 0, persistence.NewJobError("Update", filter.WorkflowID, filter.ID, fmt.Errorf("failed to marshal definition: %w", err))
		}

		builder.set("definition", string(definition))
	}

	if changes.DependsOn != nil {
		builder.set("depends_on", nullString(*changes.DependsOn))
	}

	if changes.DependencyPattern != nil {
		builder.set("dependency_pattern", nullString(*changes.DependencyPattern))
	}

	if changes.RunIfPatternMatch != nil {
		builder.set("run_if_pattern_match", *changes.RunIfPatternMatch)
	}

	if changes.Active != nil {
		builder.set("active", *changes.Active)
	}

	if changes.Status != nil {
		builder.set("status", string(*changes.Status))
	}

	switch {
	case changes.ClearNextFireTime:
		builder.set("next_fire_time", nil)
	case changes.NextFireTime != nil:
		builder.set("next_fire_time", r.dialect.timeArg(*changes.NextFireTime))
	}

	builder.set("updated_at", r.dialect.timeArg(time.Now()))

	jobWhere(builder, filter)

	if len(builder.wheres) == 0 {
		return 0, persistence.NewJobError("Update", "", "", persistence.ErrEmptyFilter)
	}

	query := r.dialect.Rebind(`UPDATE jobs SET ` + builder.setClause() + builder.whereClause())

	result, err := r.q.ExecContext(ctx, query, builder.args...)
	if err != nil {
		if r.dialect.conflict(err) {
			return 0, persistence.NewJobError("Update", filter.WorkflowID, filter.ID, fmt.Errorf("%w: %v", persistence.ErrConflict, err))
		}

		return 0, persistence.NewJobError("Update", filter.WorkflowID, filter.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected, nil
}

func (r *jobRepository) Remove(ctx context.Context, job *models.Job) error {
	result, err := r.q.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM jobs WHERE id = $1`), job.ID)
	if err != nil {
		return persistence.NewJobError("Remove", job.WorkflowID, job.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewJobError("Remove", job.WorkflowID, job.ID, persistence.ErrJobNotFound)
	}

	return nil
}

func jobWhere(builder *clauseBuilder, filter persistence.JobFilter) *clauseBuilder {
	builder.whereString("id", filter.ID)
	builder.whereString("workflow_id", filter.WorkflowID)
	builder.whereString("name", filter.Name)
	builder.whereString("depends_on", filter.DependsOn)
	builder.whereBool("active", filter.Active)

	return builder
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job               models.Job
		definition        []byte
		dependsOn         sql.NullString
		dependencyPattern sql.NullString
		status            string
		nextFireTime      dbTime
		createdAt         dbTime
		updatedAt         dbTime
	)

	err := row.Scan(
		&job.ID,
		&job.WorkflowID,
		&job.Name,
		&job.Position,
		&job.OperatorID,
		&definition,
		&dependsOn,
		&dependencyPattern,
		&job.RunIfPatternMatch,
		&job.Active,
		&status,
		&nextFireTime,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(definition) > 0 {
		err = json.Unmarshal(definition, &job.Definition)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition of job %s: %w", job.ID, err)
		}
	}

	job.DependsOn = dependsOn.String
	job.DependencyPattern = dependencyPattern.String
	job.Status = models.JobStatus(status)
	job.NextFireTime = nextFireTime.ptr()
	job.CreatedAt = createdAt.Time
	job.UpdatedAt = updatedAt.Time

	return &job, nil
}
