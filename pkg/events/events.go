// Package events defines the job lifecycle messages raised by the trigger engine.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every job lifecycle event; messages are keyed by job id.
const Topic = "jobflow.job.lifecycle"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	JobAdded     EventType = "added"
	JobSubmitted EventType = "submitted"
	JobExecuted  EventType = "executed"
	JobError     EventType = "error"
	JobMissed    EventType = "missed"
	JobScheduled EventType = "scheduled"
	JobRemoved   EventType = "removed"
)

// RemovalReason distinguishes a one-shot trigger running out from an explicit disarm.
type RemovalReason string

const (
	RemovalCompleted RemovalReason = "completed"
	RemovalDisarmed  RemovalReason = "disarmed"
)

// JobEvent is one lifecycle notification for a job.
type JobEvent struct {
	ID           string        `json:"id"`
	Type         EventType     `json:"type"`
	JobID        string        `json:"job_id"`
	WorkflowID   string        `json:"workflow_id"`
	Output       string        `json:"output,omitempty"`
	Exception    string        `json:"exception,omitempty"`
	Reason       RemovalReason `json:"reason,omitempty"`
	ScheduledAt  *time.Time    `json:"scheduled_at,omitempty"`
	NextFireTime *time.Time    `json:"next_fire_time,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (e JobEvent) GetType() EventType {
	return e.Type
}

// NewJobEvent stamps a new event for jobID.
func NewJobEvent(eventType EventType, jobID, workflowID string) JobEvent {
	return JobEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		JobID:      jobID,
		WorkflowID: workflowID,
		Timestamp:  time.Now().UTC(),
	}
}
