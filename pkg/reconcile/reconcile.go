// Package reconcile keeps persisted workflows and armed jobs in line with the definition files.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/jobflow/pkg/definition"
	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/otelhelper"
	"github.com/dukex/jobflow/pkg/persistence"
)

const DefaultInterval = 60 * time.Second

var (
	// ErrCycleInProgress is returned by RunCycle while another cycle runs.
	ErrCycleInProgress = errors.New("reconciliation cycle already in progress")
	ErrStopped         = errors.New("reconciliation loop stopped")
)

// Engine is the arming surface of the trigger engine used by reconciliation.
type Engine interface {
	Arm(job *models.Job) (time.Time, error)
	Disarm(jobID string)
	IsArmed(jobID string) bool
}

// Loader returns the current definition documents.
type Loader interface {
	Load(ctx context.Context) ([]definition.Document, error)
}

type Config struct {
	Interval time.Duration
	Tracer   trace.Tracer
}

// Report summarizes one cycle.
type Report struct {
	Created     int `json:"created"`
	Modified    int `json:"modified"`
	Unchanged   int `json:"unchanged"`
	Invalid     int `json:"invalid"`
	Failed      int `json:"failed"`
	Deactivated int `json:"deactivated"`
	Orphans     int `json:"orphans"`
	Armed       int `json:"armed"`
	Disarmed    int `json:"disarmed"`
}

type Loop struct {
	logger   *slog.Logger
	store    persistence.Store
	loader   Loader
	engine   Engine
	interval time.Duration
	tracer   trace.Tracer

	running atomic.Bool
	stopped atomic.Bool
	cycles  sync.WaitGroup

	startOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func New(logger *slog.Logger, store persistence.Store, loader Loader, engine Engine, cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	if cfg.Tracer == nil {
		cfg.Tracer = otelhelper.NoopTracer()
	}

	return &Loop{
		logger:   logger.With("module", "reconcile"),
		store:    store,
		loader:   loader,
		engine:   engine,
		interval: cfg.Interval,
		tracer:   cfg.Tracer,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a cycle immediately and then one per interval until Stop.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.logger.InfoContext(ctx, "Starting reconciliation loop", "interval", l.interval)

		go l.run(ctx)
	})
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick(ctx)

	for {
		select {
		case <-ticker.C:
			l.tick(ctx)
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	_, err := l.RunCycle(ctx)

	switch {
	case errors.Is(err, ErrCycleInProgress):
		l.logger.WarnContext(ctx, "Skipping tick, previous cycle still running")
	case err != nil:
		l.logger.ErrorContext(ctx, "Reconciliation cycle failed", "error", err)
	}
}

// Stop ends the loop and waits for the running cycle to finish. It is safe to call more than once.
func (l *Loop) Stop() {
	if l.stopped.Swap(true) {
		return
	}

	close(l.stop)

	started := true
	l.startOnce.Do(func() { started = false })

	if started {
		<-l.done
	}

	l.cycles.Wait()
}

// RunCycle performs one reconciliation pass. Only one cycle runs at a time; a concurrent call
// returns ErrCycleInProgress.
func (l *Loop) RunCycle(ctx context.Context) (Report, error) {
	if l.stopped.Load() {
		return Report{}, ErrStopped
	}

	if !l.running.CompareAndSwap(false, true) {
		return Report{}, ErrCycleInProgress
	}

	l.cycles.Add(1)
	defer l.cycles.Done()
	defer l.running.Store(false)

	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "reconcile.cycle")
	defer span.End()

	start := time.Now()

	report, err := l.cycle(ctx)
	if err != nil {
		otelhelper.SetError(span, err)
		return report, err
	}

	l.logger.InfoContext(ctx, "Reconciliation cycle finished",
		"duration", time.Since(start),
		"created", report.Created,
		"modified", report.Modified,
		"unchanged", report.Unchanged,
		"invalid", report.Invalid,
		"failed", report.Failed,
		"deactivated", report.Deactivated,
		"orphans", report.Orphans,
		"armed", report.Armed,
		"disarmed", report.Disarmed,
	)

	return report, nil
}

func (l *Loop) cycle(ctx context.Context) (Report, error) {
	var report Report

	docs, err := l.loader.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load definitions: %w", err)
	}

	seen := make(map[string]struct{}, len(docs))
	modified := make(map[string]struct{})

	for _, doc := range docs {
		seen[doc.Path] = struct{}{}

		if !doc.Valid() {
			report.Invalid++
			continue
		}

		res, err := l.applyDocument(ctx, doc)
		if err != nil {
			report.Failed++
			l.logger.ErrorContext(ctx, "Failed to apply workflow", "path", doc.Path, "workflow", doc.Name, "error", err)

			continue
		}

		switch res.outcome {
		case outcomeCreated:
			report.Created++
			modified[res.workflowID] = struct{}{}
		case outcomeModified:
			report.Modified++
			modified[res.workflowID] = struct{}{}
		default:
			report.Unchanged++
		}

		report.Disarmed += l.disarm(res.disarm)
	}

	deactivated, err := l.deactivateMissing(ctx, seen)
	if err != nil {
		return report, err
	}

	report.Deactivated = len(deactivated.workflows)
	report.Disarmed += l.disarm(deactivated.jobs)

	armed, err := l.armCalendarJobs(ctx, modified)
	if err != nil {
		return report, err
	}

	report.Armed = armed

	orphans, err := l.removeOrphans(ctx)
	if err != nil {
		return report, err
	}

	report.Orphans = len(orphans)
	report.Disarmed += l.disarm(orphans)

	return report, nil
}

// dateRearmable reports whether an unmodified date job in status may be armed again. Submitted
// and outcome statuses mean the one-shot already started.
func dateRearmable(status models.JobStatus) bool {
	switch status {
	case models.JobStatusPending, models.JobStatusAdded, models.JobStatusUnscheduled, models.JobStatusRemoved:
		return true
	default:
		return false
	}
}

func (l *Loop) disarm(jobIDs []string) int {
	for _, id := range jobIDs {
		l.engine.Disarm(id)
	}

	return len(jobIDs)
}

// armCalendarJobs arms every active calendar job of an active workflow that is not armed yet.
// Date jobs that already started stay disarmed unless their workflow was modified in this cycle.
func (l *Loop) armCalendarJobs(ctx context.Context, modified map[string]struct{}) (int, error) {
	var candidates []*models.Job

	err := l.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		candidates = nil

		workflows, err := uow.Workflows().List(ctx, persistence.WorkflowFilter{Active: persistence.Bool(true)})
		if err != nil {
			return fmt.Errorf("failed to list active workflows: %w", err)
		}

		for _, workflow := range workflows {
			jobs, err := uow.Jobs().List(ctx, persistence.JobFilter{WorkflowID: workflow.ID, Active: persistence.Bool(true)})
			if err != nil {
				return fmt.Errorf("failed to list jobs of %s: %w", workflow.Name, err)
			}

			candidates = append(candidates, jobs...)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	armed := 0

	for _, job := range candidates {
		if !job.Definition.Trigger.Kind.IsCalendar() || job.HasDependency() || l.engine.IsArmed(job.ID) {
			continue
		}

		_, wasModified := modified[job.WorkflowID]
		if job.Definition.Trigger.Kind == models.TriggerDate && !wasModified && !dateRearmable(job.Status) {
			continue
		}

		fireAt, err := l.engine.Arm(job)
		if err != nil {
			l.logger.ErrorContext(ctx, "Failed to arm job", "job_id", job.ID, "job_name", job.Name, "error", err)
			continue
		}

		l.logger.DebugContext(ctx, "Armed job", "job_id", job.ID, "job_name", job.Name, "fire_at", fireAt)

		armed++
	}

	return armed, nil
}

// removeOrphans deletes jobs whose workflow no longer exists and returns their ids.
func (l *Loop) removeOrphans(ctx context.Context) ([]string, error) {
	var removed []string

	err := l.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		removed = nil

		workflows, err := uow.Workflows().List(ctx, persistence.WorkflowFilter{})
		if err != nil {
			return fmt.Errorf("failed to list workflows: %w", err)
		}

		known := make(map[string]struct{}, len(workflows))
		for _, workflow := range workflows {
			known[workflow.ID] = struct{}{}
		}

		jobs, err := uow.Jobs().List(ctx, persistence.JobFilter{})
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}

		for _, job := range jobs {
			if _, ok := known[job.WorkflowID]; ok {
				continue
			}

			err := uow.Jobs().Remove(ctx, job)
			if err != nil {
				return fmt.Errorf("failed to remove orphan job %s: %w", job.ID, err)
			}

			l.logger.WarnContext(ctx, "Removed orphan job", "job_id", job.ID, "workflow_id", job.WorkflowID)
			removed = append(removed, job.ID)
		}

		return nil
	})

	return removed, err
}

type deactivation struct {
	workflows []string
	jobs      []string
}

// deactivateMissing marks workflows whose definition file is gone as inactive. Rows are kept.
func (l *Loop) deactivateMissing(ctx context.Context, seen map[string]struct{}) (deactivation, error) {
	var result deactivation

	err := l.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		result = deactivation{}

		workflows, err := uow.Workflows().List(ctx, persistence.WorkflowFilter{})
		if err != nil {
			return fmt.Errorf("failed to list workflows: %w", err)
		}

		for _, workflow := range workflows {
			if _, ok := seen[workflow.SourcePath]; ok {
				continue
			}

			if !workflow.Active && !workflow.FileExists {
				continue
			}

			_, err := uow.Workflows().Update(ctx, persistence.WorkflowFilter{ID: workflow.ID}, persistence.WorkflowChanges{
				Active:     persistence.Bool(false),
				FileExists: persistence.Bool(false),
			})
			if err != nil {
				return fmt.Errorf("failed to deactivate workflow %s: %w", workflow.Name, err)
			}

			jobs, err := uow.Jobs().List(ctx, persistence.JobFilter{WorkflowID: workflow.ID})
			if err != nil {
				return fmt.Errorf("failed to list jobs of %s: %w", workflow.Name, err)
			}

			_, err = uow.Jobs().Update(ctx, persistence.JobFilter{WorkflowID: workflow.ID}, persistence.JobChanges{
				ClearNextFireTime: true,
			})
			if err != nil {
				return fmt.Errorf("failed to clear fire times of %s: %w", workflow.Name, err)
			}

			err = recordWorkflowEvent(ctx, uow, workflow.ID, models.EventWorkflowDeactivated)
			if err != nil {
				return err
			}

			l.logger.InfoContext(ctx, "Deactivated workflow with missing definition",
				"workflow", workflow.Name, "path", workflow.SourcePath)

			result.workflows = append(result.workflows, workflow.ID)
			for _, job := range jobs {
				result.jobs = append(result.jobs, job.ID)
			}
		}

		return nil
	})

	return result, err
}

func recordWorkflowEvent(ctx context.Context, uow persistence.UnitOfWork, workflowID, name string) error {
	err := uow.Events().Add(ctx, &models.Event{
		Name:      name,
		ModelKind: models.ModelKindWorkflow,
		ModelID:   workflowID,
	})
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", name, err)
	}

	return nil
}

func withWorkflow(span trace.Span, name string) {
	span.SetAttributes(attribute.String(otelhelper.WorkflowNameKey, name))
}
