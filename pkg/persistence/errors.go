package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrJobNotFound indicates a job was not found by the given identifier.
	ErrJobNotFound = errors.New("job not found")

	// ErrConflict indicates a uniqueness or integrity constraint was violated.
	ErrConflict = errors.New("integrity constraint violated")

	// ErrEmptyFilter guards Update from touching every row.
	ErrEmptyFilter = errors.New("update requires a non-empty filter")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "Add", "Update")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// JobError wraps job-related errors with additional context.
type JobError struct {
	Op         string
	WorkflowID string
	JobID      string
	Err        error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s operation failed for job %s in workflow %s: %v", e.Op, e.JobID, e.WorkflowID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func (e *JobError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewJobError creates a new job error with context.
func NewJobError(op, workflowID, jobID string, err error) *JobError {
	return &JobError{
		Op:         op,
		WorkflowID: workflowID,
		JobID:      jobID,
		Err:        err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsJobNotFound checks if an error indicates a job was not found.
func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsConflict checks if an error is an integrity violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
