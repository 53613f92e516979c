package dependency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
	"github.com/dukex/jobflow/pkg/testutil"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		name       string
		pattern    string
		runIfMatch bool
		output     string
		want       bool
	}{
		{"matches and run if match", "ok", true, "job ok", true},
		{"no match and run if match", "ok", true, "job failed", false},
		{"matches and run if no match", "fail", false, "fail: true", false},
		{"no match and run if no match", "fail", false, "all good", true},
		{"match is case insensitive", "OK", true, "Job oK", true},
		{"no pattern always eligible", "", true, "anything", true},
		{"no pattern ignores run flag", "", false, "", true},
		{"empty output never contains pattern", "ok", true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &models.Job{DependencyPattern: tt.pattern, RunIfPatternMatch: tt.runIfMatch}
			assert.Equal(t, tt.want, Eligible(job, tt.output))
		})
	}
}

func TestResolveDependents(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow("w")
	producer := testutil.CreateTestJob(workflow.ID, "a")
	onOK := testutil.CreateTestJob(workflow.ID, "b", testutil.WithDependency(producer.ID, "ok", true))
	onNoFail := testutil.CreateTestJob(workflow.ID, "c", testutil.WithDependency(producer.ID, "fail", false))
	always := testutil.CreateTestJob(workflow.ID, "d", testutil.WithDependency(producer.ID, "", true))
	inactive := testutil.CreateTestJob(workflow.ID, "e", testutil.WithDependency(producer.ID, "", true), testutil.Inactive())
	unrelated := testutil.CreateTestJob(workflow.ID, "f", testutil.WithDependency(onOK.ID, "", true))

	testutil.Seed(t, store, workflow, producer, onOK, onNoFail, always, inactive, unrelated)

	resolve := func(output string) []string {
		var names []string

		err := store.Do(ctx, func(uow persistence.UnitOfWork) error {
			jobs, err := ResolveDependents(ctx, uow, producer.ID, output)
			for _, job := range jobs {
				names = append(names, job.Name)
			}

			return err
		})
		require.NoError(t, err)

		return names
	}

	assert.Equal(t, []string{"b", "c", "d"}, resolve("job ok"))
	assert.Equal(t, []string{"d"}, resolve("fail: true"))
	assert.Equal(t, []string{"c", "d"}, resolve("nothing to see"))
}
