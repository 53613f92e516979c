// Package dispatcher applies job lifecycle events to the state store.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/jobflow/pkg/dependency"
	"github.com/dukex/jobflow/pkg/eventbus"
	"github.com/dukex/jobflow/pkg/events"
	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
)

// Armer arms dependents once their producer executed.
type Armer interface {
	Arm(job *models.Job) (time.Time, error)
}

type Dispatcher struct {
	logger *slog.Logger
	store  persistence.Store
	armer  Armer
}

func New(logger *slog.Logger, store persistence.Store, armer Armer) *Dispatcher {
	return &Dispatcher{
		logger: logger.With("module", "dispatcher"),
		store:  store,
		armer:  armer,
	}
}

// Start makes the dispatcher the consumer of the lifecycle stream.
func (d *Dispatcher) Start(ctx context.Context, bus eventbus.EventSubscriber) error {
	err := bus.Subscribe(ctx, d.Handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe dispatcher: %w", err)
	}

	d.logger.InfoContext(ctx, "Dispatcher subscribed to lifecycle events")

	return nil
}

// Handle records ev, moves the job through its status machine and, for an executed job, schedules
// the eligible dependents. Everything happens in one unit of work; dependents are armed only after
// it commits.
func (d *Dispatcher) Handle(ctx context.Context, ev events.JobEvent) error {
	logger := d.logger.With("event_type", ev.Type, "job_id", ev.JobID, "event_id", ev.ID)

	var dependents []scheduledDependent

	err := d.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		dependents = nil

		err := uow.Events().Add(ctx, &models.Event{
			Name:      string(ev.Type),
			ModelKind: models.ModelKindJob,
			ModelID:   ev.JobID,
			Exception: ev.Exception,
			Output:    ev.Output,
			Timestamp: ev.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}

		job, err := uow.Jobs().Get(ctx, persistence.JobFilter{ID: ev.JobID})
		if err != nil {
			return fmt.Errorf("failed to load job: %w", err)
		}

		if job == nil {
			logger.WarnContext(ctx, "Event for unknown job recorded without transition")
			return nil
		}

		err = d.applyTransition(ctx, uow, logger, job, ev)
		if err != nil {
			return err
		}

		if ev.Type != events.JobExecuted {
			return nil
		}

		dependents, err = d.scheduleDependents(ctx, uow, job, ev.Output)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to dispatch %s event for job %s: %w", ev.Type, ev.JobID, err)
	}

	for _, dependent := range dependents {
		fireAt, err := d.armer.Arm(dependent.job)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to arm dependent", "dependent_id", dependent.job.ID, "error", err)
			d.revertDependent(ctx, logger, dependent)

			continue
		}

		logger.InfoContext(ctx, "Armed dependent",
			"dependent_id", dependent.job.ID, "dependent_name", dependent.job.Name, "fire_at", fireAt)
	}

	return nil
}

// scheduledDependent is a dependent moved to scheduled, with the status it had before.
type scheduledDependent struct {
	job   *models.Job
	prior models.JobStatus
}

// revertDependent puts a dependent that could not be armed back to its prior status, unless
// something else moved it on in the meantime.
func (d *Dispatcher) revertDependent(ctx context.Context, logger *slog.Logger, dependent scheduledDependent) {
	err := d.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		job, err := uow.Jobs().Get(ctx, persistence.JobFilter{ID: dependent.job.ID})
		if err != nil || job == nil || job.Status != models.JobStatusScheduled {
			return err
		}

		_, err = uow.Jobs().Update(ctx, persistence.JobFilter{ID: job.ID}, persistence.JobChanges{
			Status:            persistence.Status(dependent.prior),
			ClearNextFireTime: true,
		})

		return err
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to revert dependent status", "dependent_id", dependent.job.ID, "error", err)
		return
	}

	logger.WarnContext(ctx, "Dependent left disarmed", "dependent_id", dependent.job.ID, "status", dependent.prior)
}

func (d *Dispatcher) applyTransition(ctx context.Context, uow persistence.UnitOfWork, logger *slog.Logger, job *models.Job, ev events.JobEvent) error {
	next, ok := events.Transition(job.Status, ev)
	if !ok {
		logger.WarnContext(ctx, "Ignoring transition not allowed from current status", "status", job.Status)
		return nil
	}

	changes := persistence.JobChanges{Status: persistence.Status(next)}

	switch ev.Type {
	case events.JobAdded, events.JobScheduled:
		changes.NextFireTime = ev.NextFireTime
	case events.JobRemoved:
		changes.ClearNextFireTime = true
	}

	_, err := uow.Jobs().Update(ctx, persistence.JobFilter{ID: job.ID}, changes)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	logger.DebugContext(ctx, "Job status changed", "from", job.Status, "to", next)

	return nil
}

func (d *Dispatcher) scheduleDependents(ctx context.Context, uow persistence.UnitOfWork, producer *models.Job, output string) ([]scheduledDependent, error) {
	dependents, err := dependency.ResolveDependents(ctx, uow, producer.ID, output)
	if err != nil {
		return nil, err
	}

	scheduled := make([]scheduledDependent, 0, len(dependents))

	for _, dependent := range dependents {
		prior := dependent.Status

		_, err := uow.Jobs().Update(ctx, persistence.JobFilter{ID: dependent.ID}, persistence.JobChanges{
			Status: persistence.Status(models.JobStatusScheduled),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule dependent %s: %w", dependent.ID, err)
		}

		dependent.Status = models.JobStatusScheduled
		scheduled = append(scheduled, scheduledDependent{job: dependent, prior: prior})
	}

	return scheduled, nil
}
