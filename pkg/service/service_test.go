package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
	"github.com/dukex/jobflow/pkg/testutil"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"minimal", Config{DatabaseURL: "sqlite://x.db", WorkflowsPath: "./workflows"}, false},
		{"missing database", Config{WorkflowsPath: "./workflows"}, true},
		{"missing workflows", Config{DatabaseURL: "sqlite://x.db"}, true},
		{"unknown bus", Config{DatabaseURL: "sqlite://x.db", WorkflowsPath: ".", EventBus: "nats"}, true},
		{"kafka without brokers", Config{DatabaseURL: "sqlite://x.db", WorkflowsPath: ".", EventBus: "kafka"}, true},
		{"kafka with brokers", Config{DatabaseURL: "sqlite://x.db", WorkflowsPath: ".", EventBus: "kafka", KafkaBrokers: []string{"localhost:9092"}}, false},
		{"negative pool", Config{DatabaseURL: "sqlite://x.db", WorkflowsPath: ".", WorkerPoolSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := Config{DatabaseURL: "sqlite://x.db", WorkflowsPath: "."}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gochannel", cfg.EventBus)
	assert.Equal(t, 60*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 20, cfg.WorkerPoolSize)
	assert.Equal(t, 30*time.Second, cfg.MisfireGrace)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

const workflowTemplate = `version: "1"
workflow:
  name: w
  jobs:
    - name: a
      operator: log
      trigger: date
      run_date: "%RUN_DATE%"
      message: "%OUTPUT%"
    - name: b
      operator: log
      trigger: dependency
      depends_on: a
      dependency_logs_pattern: ok
      run_if_pattern_match: true
      message: "b ran after {{ .job.name }}"
    - name: c
      operator: log
      trigger: dependency
      depends_on: a
      dependency_logs_pattern: ok
      run_if_pattern_match: false
      message: c
`

func startService(t *testing.T, output string) *Service {
	t.Helper()

	dir := t.TempDir()
	workflows := filepath.Join(dir, "workflows")
	require.NoError(t, os.Mkdir(workflows, 0o755))

	body := strings.NewReplacer(
		"%RUN_DATE%", time.Now().UTC().Format("2006-01-02 15:04:05"),
		"%OUTPUT%", output,
	).Replace(workflowTemplate)
	require.NoError(t, os.WriteFile(filepath.Join(workflows, "w.yaml"), []byte(body), 0o600))

	svc, err := New(context.Background(), testutil.Logger(), Config{
		DatabaseURL:       "sqlite://" + filepath.Join(dir, "jobflow.db"),
		WorkflowsPath:     workflows,
		ReconcileInterval: time.Hour,
		ShutdownTimeout:   5 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		assert.NoError(t, svc.Shutdown(ctx))
	})

	return svc
}

func jobsByName(t *testing.T, store persistence.Store) map[string]*models.Job {
	t.Helper()

	ctx := context.Background()
	byName := map[string]*models.Job{}

	require.NoError(t, store.Do(ctx, func(uow persistence.UnitOfWork) error {
		jobs, err := uow.Jobs().List(ctx, persistence.JobFilter{})
		for _, job := range jobs {
			byName[job.Name] = job
		}

		return err
	}))

	return byName
}

func eventNames(t *testing.T, store persistence.Store, jobID string) []string {
	t.Helper()

	var names []string
	for _, ev := range testutil.ListEvents(t, store, jobID) {
		names = append(names, ev.Name)
	}

	return names
}

func TestService_DependentRunsAfterMatchingOutput(t *testing.T) {
	svc := startService(t, "job ok")

	require.Eventually(t, func() bool {
		jobs := jobsByName(t, svc.Store())
		return len(jobs) == 3 && len(eventNames(t, svc.Store(), jobs["b"].ID)) == 4
	}, 10*time.Second, 20*time.Millisecond)

	jobs := jobsByName(t, svc.Store())
	assert.Equal(t, models.JobStatusExecuted, jobs["b"].Status)
	assert.Equal(t, models.JobStatusExecuted, jobs["a"].Status)
	assert.Equal(t, models.JobStatusPending, jobs["c"].Status, "c runs only when the output lacks its pattern")
	assert.False(t, svc.Engine().IsArmed(jobs["c"].ID))

	assert.Equal(t, []string{"added", "submitted", "executed", "removed"}, eventNames(t, svc.Store(), jobs["a"].ID))
	assert.Equal(t, []string{"added", "submitted", "executed", "removed"}, eventNames(t, svc.Store(), jobs["b"].ID))

	events := testutil.ListEvents(t, svc.Store(), jobs["b"].ID)
	assert.Equal(t, "b ran after b", events[2].Output)
}

func TestService_DependentWaitsOnMismatch(t *testing.T) {
	svc := startService(t, "job failed")

	require.Eventually(t, func() bool {
		jobs := jobsByName(t, svc.Store())
		return len(jobs) == 3 && len(eventNames(t, svc.Store(), jobs["c"].ID)) == 4
	}, 10*time.Second, 20*time.Millisecond)

	jobs := jobsByName(t, svc.Store())
	assert.Equal(t, models.JobStatusExecuted, jobs["a"].Status)
	assert.Equal(t, models.JobStatusExecuted, jobs["c"].Status)
	assert.Equal(t, models.JobStatusPending, jobs["b"].Status)
	assert.False(t, svc.Engine().IsArmed(jobs["b"].ID))
	assert.Empty(t, eventNames(t, svc.Store(), jobs["b"].ID))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), testutil.Logger(), Config{})
	require.Error(t, err)
}
