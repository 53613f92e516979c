// Package web serves the read-only observe API of the orchestrator.
package web

import (
	"time"

	"github.com/dukex/jobflow/pkg/models"
)

// ListWorkflowsQuery holds the query parameters of GET /workflows.
type ListWorkflowsQuery struct {
	Active string `query:"active" validate:"omitempty,oneof=true false"`
}

// ListEventsQuery holds the query parameters of GET /jobs/:id/events.
type ListEventsQuery struct {
	Limit int `query:"limit" validate:"gte=0,lte=1000"`
}

// JobResponse is a stored job plus what the engine currently holds for it.
type JobResponse struct {
	*models.Job

	Armed       bool       `json:"armed"`
	ArmedFireAt *time.Time `json:"armed_fire_at,omitempty"`
}

// WorkflowResponse is a workflow with its jobs in position order.
type WorkflowResponse struct {
	*models.Workflow

	Jobs []JobResponse `json:"jobs"`
}
