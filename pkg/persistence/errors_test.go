package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/jobflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("Update", "workflow-123", persistence.ErrWorkflowNotFound)
		jobErr := persistence.NewJobError("Add", "workflow-123", "job-456", persistence.ErrConflict)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsConflict(jobErr))
		assert.False(t, persistence.IsJobNotFound(jobErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(jobErr, persistence.ErrConflict))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Update", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("job error contains context", func(t *testing.T) {
		err := persistence.NewJobError("Remove", "workflow-1", "job-9", persistence.ErrJobNotFound)

		assert.Contains(t, err.Error(), "Remove")
		assert.Contains(t, err.Error(), "job-9")
		assert.Contains(t, err.Error(), "workflow-1")
	})

	t.Run("wrapped errors still match", func(t *testing.T) {
		wrapped := fmt.Errorf("reconcile: %w", persistence.NewJobError("Add", "w", "j", persistence.ErrConflict))

		assert.True(t, persistence.IsConflict(wrapped))
	})
}

func TestPointerHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, *persistence.Bool(true))
	assert.Equal(t, "x", *persistence.String("x"))
	assert.Equal(t, "executed", string(*persistence.Status("executed")))
}
