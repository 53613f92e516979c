package models

import "time"

// JobStatus is the lifecycle state of a job, driven by engine events.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusAdded       JobStatus = "added"
	JobStatusSubmitted   JobStatus = "submitted"
	JobStatusScheduled   JobStatus = "scheduled"
	JobStatusExecuted    JobStatus = "executed"
	JobStatusMissed      JobStatus = "missed"
	JobStatusError       JobStatus = "error"
	JobStatusUnscheduled JobStatus = "unscheduled"
	JobStatusRemoved     JobStatus = "removed"
)

// IsOutcome reports whether the status records the result of a fire.
func (s JobStatus) IsOutcome() bool {
	return s == JobStatusExecuted || s == JobStatusError || s == JobStatusMissed
}

// Job is a named unit of work owned by exactly one workflow.
type Job struct {
	ID                string        `json:"id"`
	WorkflowID        string        `json:"workflow_id"`
	Name              string        `json:"name"`
	Position          int           `json:"position"`
	OperatorID        string        `json:"operator_id"`
	Definition        JobDefinition `json:"definition"`
	DependsOn         string        `json:"depends_on,omitempty"`
	DependencyPattern string        `json:"dependency_pattern,omitempty"`
	RunIfPatternMatch bool          `json:"run_if_pattern_match"`
	Active            bool          `json:"active"`
	Status            JobStatus     `json:"status"`
	NextFireTime      *time.Time    `json:"next_fire_time,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// JobDefinition is the opaque payload stored with a job: how it fires and what it runs with.
type JobDefinition struct {
	Trigger TriggerSpec    `json:"trigger"`
	Params  map[string]any `json:"params,omitempty"`
}

// HasDependency reports whether the job waits on another job.
func (j *Job) HasDependency() bool {
	return j.DependsOn != ""
}
