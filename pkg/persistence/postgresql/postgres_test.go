//go:build integration

package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
	"github.com/dukex/jobflow/pkg/persistence/postgresql"
	"github.com/dukex/jobflow/pkg/persistence/sqlbase"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"events", "jobs", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*sqlbase.Store, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("jobflow_test"),
			postgres.WithUsername("jobflow"),
			postgres.WithPassword("jobflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewStore(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewStore_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "jobs", "events", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewStore_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestStore_WorkflowAndJobRoundTrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := &models.Workflow{
		ID:          uuid.NewString(),
		Name:        "nightly",
		SourcePath:  "/etc/jobflow/nightly.yaml",
		FileExists:  true,
		Fingerprint: "abc",
		Active:      true,
	}

	fire := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	job := &models.Job{
		ID:         uuid.NewString(),
		WorkflowID: workflow.ID,
		Name:       "extract",
		OperatorID: "log",
		Definition: models.JobDefinition{
			Trigger: models.TriggerSpec{Kind: models.TriggerInterval, Minutes: 5},
			Params:  map[string]any{"message": "hello"},
		},
		RunIfPatternMatch: true,
		Active:            true,
		NextFireTime:      &fire,
	}

	err := store.Do(ctx, func(uow persistence.UnitOfWork) error {
		if err := uow.Workflows().Add(ctx, workflow); err != nil {
			return err
		}

		return uow.Jobs().Add(ctx, job)
	})
	require.NoError(t, err)

	err = store.Do(ctx, func(uow persistence.UnitOfWork) error {
		got, err := uow.Workflows().Get(ctx, persistence.WorkflowFilter{Name: "nightly"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, workflow.ID, got.ID)
		assert.True(t, got.FileExists)

		gotJob, err := uow.Jobs().Get(ctx, persistence.JobFilter{ID: job.ID})
		require.NoError(t, err)
		require.NotNil(t, gotJob)
		assert.Equal(t, models.JobStatusPending, gotJob.Status)
		assert.Equal(t, 5, gotJob.Definition.Trigger.Minutes)
		assert.Equal(t, "hello", gotJob.Definition.Params["message"])
		require.NotNil(t, gotJob.NextFireTime)
		assert.True(t, fire.Equal(*gotJob.NextFireTime))

		return nil
	})
	require.NoError(t, err)
}

func TestStore_DuplicateWorkflowNameIsConflict(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	add := func() error {
		return store.Do(ctx, func(uow persistence.UnitOfWork) error {
			return uow.Workflows().Add(ctx, &models.Workflow{
				ID:          uuid.NewString(),
				Name:        "dup",
				SourcePath:  "/tmp/dup.yaml",
				Fingerprint: "x",
				Active:      true,
			})
		})
	}

	require.NoError(t, add())

	err := add()
	require.Error(t, err)
	assert.True(t, persistence.IsConflict(err))
}

func TestStore_RollbackOnError(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	err := store.Do(ctx, func(uow persistence.UnitOfWork) error {
		err := uow.Events().Add(ctx, &models.Event{Name: "job_added", ModelKind: models.ModelKindJob, ModelID: "j1"})
		require.NoError(t, err)

		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	err = store.Do(ctx, func(uow persistence.UnitOfWork) error {
		events, err := uow.Events().List(ctx, persistence.EventFilter{ModelID: "j1"})
		require.NoError(t, err)
		assert.Empty(t, events)

		return nil
	})
	require.NoError(t, err)
}
