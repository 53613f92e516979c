package events

import (
	"testing"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		current models.JobStatus
		event   JobEvent
		want    models.JobStatus
		ok      bool
	}{
		{"pending armed", models.JobStatusPending, JobEvent{Type: JobAdded}, models.JobStatusAdded, true},
		{"resolver scheduled keeps scheduled on added", models.JobStatusScheduled, JobEvent{Type: JobAdded}, models.JobStatusScheduled, true},
		{"added fired", models.JobStatusAdded, JobEvent{Type: JobSubmitted}, models.JobStatusSubmitted, true},
		{"submitted executed", models.JobStatusSubmitted, JobEvent{Type: JobExecuted}, models.JobStatusExecuted, true},
		{"submitted failed", models.JobStatusSubmitted, JobEvent{Type: JobError}, models.JobStatusError, true},
		{"executed without submit rejected", models.JobStatusPending, JobEvent{Type: JobExecuted}, models.JobStatusPending, false},
		{"repeating re-armed", models.JobStatusExecuted, JobEvent{Type: JobScheduled}, models.JobStatusScheduled, true},
		{"repeating fires again", models.JobStatusScheduled, JobEvent{Type: JobSubmitted}, models.JobStatusSubmitted, true},
		{"missed while armed", models.JobStatusAdded, JobEvent{Type: JobMissed}, models.JobStatusMissed, true},
		{"missed from pending rejected", models.JobStatusPending, JobEvent{Type: JobMissed}, models.JobStatusPending, false},
		{"one-shot completed keeps outcome", models.JobStatusExecuted, JobEvent{Type: JobRemoved, Reason: RemovalCompleted}, models.JobStatusExecuted, true},
		{"disarmed before firing", models.JobStatusAdded, JobEvent{Type: JobRemoved, Reason: RemovalDisarmed}, models.JobStatusRemoved, true},
		{"disarmed after firing", models.JobStatusExecuted, JobEvent{Type: JobRemoved, Reason: RemovalDisarmed}, models.JobStatusUnscheduled, true},
		{"unscheduled re-armed", models.JobStatusUnscheduled, JobEvent{Type: JobAdded}, models.JobStatusAdded, true},
		{"removed re-armed", models.JobStatusRemoved, JobEvent{Type: JobAdded}, models.JobStatusAdded, true},
		{"submitted cannot be re-added", models.JobStatusSubmitted, JobEvent{Type: JobAdded}, models.JobStatusSubmitted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Transition(tt.current, tt.event)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJobEvent(t *testing.T) {
	ev := NewJobEvent(JobExecuted, "job-1", "wf-1")

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, JobExecuted, ev.GetType())
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, "wf-1", ev.WorkflowID)
	assert.False(t, ev.Timestamp.IsZero())
}
