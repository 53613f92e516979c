// Package persistence provides the repository and unit-of-work abstraction over durable state.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/jobflow/pkg/models"
)

// Store owns the durable state. Every logical operation runs inside Do.
type Store interface {
	// Do runs fn in one unit of work. The unit commits when fn returns nil and rolls back when
	// fn returns an error or panics; exactly one of the two happens.
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// UnitOfWork exposes the repositories bound to one open transaction.
type UnitOfWork interface {
	Workflows() WorkflowRepository
	Jobs() JobRepository
	Events() EventRepository
}

// WorkflowFilter selects workflows; zero-valued fields are ignored.
type WorkflowFilter struct {
	ID         string
	Name       string
	SourcePath string
	Active     *bool
}

// WorkflowChanges lists the columns to update; nil fields are left untouched.
type WorkflowChanges struct {
	SourcePath            *string
	FileExists            *bool
	Fingerprint           *string
	ModifiedSinceLastLoad *bool
	Active                *bool
}

type WorkflowRepository interface {
	Add(ctx context.Context, workflow *models.Workflow) error
	// Get returns nil, nil when no workflow matches.
	Get(ctx context.Context, filter WorkflowFilter) (*models.Workflow, error)
	List(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)
	Update(ctx context.Context, filter WorkflowFilter, changes WorkflowChanges) (int64, error)
	Remove(ctx context.Context, workflow *models.Workflow) error
}

// JobFilter selects jobs; zero-valued fields are ignored.
type JobFilter struct {
	ID         string
	WorkflowID string
	Name       string
	DependsOn  string
	Active     *bool
}

// JobChanges lists the columns to update; nil fields are left untouched.
// ClearNextFireTime wins over NextFireTime.
type JobChanges struct {
	Position          *int
	OperatorID        *string
	Definition        *models.JobDefinition
	DependsOn         *string
	DependencyPattern *string
	RunIfPatternMatch *bool
	Active            *bool
	Status            *models.JobStatus
	NextFireTime      *time.Time
	ClearNextFireTime bool
}

type JobRepository interface {
	Add(ctx context.Context, job *models.Job) error
	// Get returns nil, nil when no job matches.
	Get(ctx context.Context, filter JobFilter) (*models.Job, error)
	// List returns matching jobs ordered by workflow and position.
	List(ctx context.Context, filter JobFilter) ([]*models.Job, error)
	Update(ctx context.Context, filter JobFilter, changes JobChanges) (int64, error)
	Remove(ctx context.Context, job *models.Job) error
}

// EventFilter selects audit events; zero-valued fields are ignored. Limit 0 means no limit.
type EventFilter struct {
	ID        string
	Name      string
	ModelKind models.ModelKind
	ModelID   string
	Limit     int
}

// EventRepository is append-only.
type EventRepository interface {
	Add(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, filter EventFilter) (*models.Event, error)
	// List returns matching events oldest first.
	List(ctx context.Context, filter EventFilter) ([]*models.Event, error)
}

// Bool returns a pointer to b, for filters and change sets.
func Bool(b bool) *bool {
	return &b
}

// String returns a pointer to s, for change sets.
func String(s string) *string {
	return &s
}

// Status returns a pointer to s, for change sets.
func Status(s models.JobStatus) *models.JobStatus {
	return &s
}
