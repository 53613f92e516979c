package models

import "time"

// ModelKind names the aggregate an audit event is about.
type ModelKind string

const (
	ModelKindJob      ModelKind = "job"
	ModelKindWorkflow ModelKind = "workflow"
)

// Workflow-level audit event names written by reconciliation.
const (
	EventWorkflowCreated     = "workflow_created"
	EventWorkflowModified    = "workflow_modified"
	EventWorkflowDeactivated = "workflow_deactivated"
)

// Event is an immutable audit record; one per lifecycle transition.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ModelKind ModelKind `json:"model_kind"`
	ModelID   string    `json:"model_id"`
	Exception string    `json:"exception,omitempty"`
	Output    string    `json:"output,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
