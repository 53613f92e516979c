// Package testutil provides test data builders and a throwaway store for tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
	"github.com/dukex/jobflow/pkg/persistence/sqlbase"
	"github.com/dukex/jobflow/pkg/persistence/sqlite"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore opens an in-memory SQLite store closed at test cleanup.
func NewStore(t *testing.T) *sqlbase.Store {
	t.Helper()

	store, err := sqlite.NewStore(context.Background(), Logger(), ":memory:")
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store
}

// CreateTestWorkflow creates an active workflow with default values that can be overridden.
func CreateTestWorkflow(name string, overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		SourcePath:  "/workflows/" + name + ".yaml",
		FileExists:  true,
		Fingerprint: "fp-" + name,
		Active:      true,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// CreateTestJob creates an active log job firing every minute.
func CreateTestJob(workflowID, name string, overrides ...func(*models.Job)) *models.Job {
	job := &models.Job{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Name:       name,
		OperatorID: "log",
		Definition: models.JobDefinition{
			Trigger: models.TriggerSpec{Kind: models.TriggerInterval, Minutes: 1},
			Params:  map[string]any{"message": name},
		},
		RunIfPatternMatch: true,
		Active:            true,
		Status:            models.JobStatusPending,
	}

	for _, override := range overrides {
		override(job)
	}

	return job
}

// WithDependency makes the job a dependency-triggered dependent of producerID.
func WithDependency(producerID, pattern string, runIfMatch bool) func(*models.Job) {
	return func(j *models.Job) {
		j.DependsOn = producerID
		j.DependencyPattern = pattern
		j.RunIfPatternMatch = runIfMatch
		j.Definition.Trigger = models.TriggerSpec{Kind: models.TriggerDependency}
	}
}

// WithTrigger replaces the job trigger.
func WithTrigger(spec models.TriggerSpec) func(*models.Job) {
	return func(j *models.Job) {
		j.Definition.Trigger = spec
	}
}

// WithStatus sets the job status.
func WithStatus(status models.JobStatus) func(*models.Job) {
	return func(j *models.Job) {
		j.Status = status
	}
}

// Inactive marks the job inactive.
func Inactive() func(*models.Job) {
	return func(j *models.Job) {
		j.Active = false
	}
}

// Seed stores workflow and jobs in one unit of work. Jobs get their position from argument order.
func Seed(t *testing.T, store persistence.Store, workflow *models.Workflow, jobs ...*models.Job) {
	t.Helper()

	ctx := context.Background()

	err := store.Do(ctx, func(uow persistence.UnitOfWork) error {
		if workflow != nil {
			if err := uow.Workflows().Add(ctx, workflow); err != nil {
				return err
			}
		}

		for i, job := range jobs {
			job.Position = i

			if err := uow.Jobs().Add(ctx, job); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)
}

// GetJob reads a job back from the store.
func GetJob(t *testing.T, store persistence.Store, id string) *models.Job {
	t.Helper()

	var job *models.Job

	ctx := context.Background()
	err := store.Do(ctx, func(uow persistence.UnitOfWork) error {
		var err error
		job, err = uow.Jobs().Get(ctx, persistence.JobFilter{ID: id})

		return err
	})
	require.NoError(t, err)

	return job
}

// GetWorkflow reads a workflow back from the store by name.
func GetWorkflow(t *testing.T, store persistence.Store, name string) *models.Workflow {
	t.Helper()

	var workflow *models.Workflow

	ctx := context.Background()
	err := store.Do(ctx, func(uow persistence.UnitOfWork) error {
		var err error
		workflow, err = uow.Workflows().Get(ctx, persistence.WorkflowFilter{Name: name})

		return err
	})
	require.NoError(t, err)

	return workflow
}

// ListEvents returns the audit events recorded for modelID, oldest first.
func ListEvents(t *testing.T, store persistence.Store, modelID string) []*models.Event {
	t.Helper()

	var list []*models.Event

	ctx := context.Background()
	err := store.Do(ctx, func(uow persistence.UnitOfWork) error {
		var err error
		list, err = uow.Events().List(ctx, persistence.EventFilter{ModelID: modelID})

		return err
	})
	require.NoError(t, err)

	return list
}
