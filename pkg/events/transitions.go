package events

import "github.com/dukex/jobflow/pkg/models"

// Transition returns the status a job moves to when ev is observed while in current.
// ok is false when the event does not apply to the current status; callers then keep the
// status unchanged.
func Transition(current models.JobStatus, ev JobEvent) (models.JobStatus, bool) {
	switch ev.Type {
	case JobAdded:
		switch current {
		case models.JobStatusScheduled:
			return current, true
		case models.JobStatusPending, models.JobStatusAdded, models.JobStatusUnscheduled,
			models.JobStatusRemoved, models.JobStatusExecuted, models.JobStatusError, models.JobStatusMissed:
			return models.JobStatusAdded, true
		}

	case JobSubmitted:
		switch current {
		case models.JobStatusAdded, models.JobStatusScheduled,
			models.JobStatusExecuted, models.JobStatusError, models.JobStatusMissed:
			return models.JobStatusSubmitted, true
		}

	case JobExecuted:
		if current == models.JobStatusSubmitted {
			return models.JobStatusExecuted, true
		}

	case JobError:
		if current == models.JobStatusSubmitted {
			return models.JobStatusError, true
		}

	case JobMissed:
		switch current {
		case models.JobStatusAdded, models.JobStatusScheduled,
			models.JobStatusExecuted, models.JobStatusError, models.JobStatusMissed:
			return models.JobStatusMissed, true
		}

	case JobScheduled:
		switch current {
		case models.JobStatusPending, models.JobStatusSubmitted, models.JobStatusScheduled,
			models.JobStatusExecuted, models.JobStatusError, models.JobStatusMissed:
			return models.JobStatusScheduled, true
		}

	case JobRemoved:
		if ev.Reason == RemovalCompleted {
			// a one-shot keeps its outcome as terminal status
			return current, true
		}

		switch current {
		case models.JobStatusPending, models.JobStatusAdded, models.JobStatusScheduled, models.JobStatusRemoved:
			return models.JobStatusRemoved, true
		case models.JobStatusSubmitted, models.JobStatusExecuted, models.JobStatusError,
			models.JobStatusMissed, models.JobStatusUnscheduled:
			return models.JobStatusUnscheduled, true
		}
	}

	return current, false
}
