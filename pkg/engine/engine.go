// Package engine arms jobs against their triggers, fires them on a bounded worker pool and
// reports every lifecycle transition as an event.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/dukex/jobflow/pkg/events"
	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/otelhelper"
	"github.com/dukex/jobflow/pkg/template"
	"github.com/dukex/jobflow/pkg/trigger"
)

const (
	DefaultPoolSize     = 20
	DefaultMisfireGrace = 30 * time.Second
)

// ErrNotArmed is returned by ModifyJob for a job that is not armed.
var ErrNotArmed = errors.New("job is not armed")

// Emitter receives lifecycle events. Emit must not block.
type Emitter interface {
	Emit(event events.JobEvent)
}

// Executor runs the operator of a job.
type Executor interface {
	Execute(ctx context.Context, operatorID string, params map[string]any, logger *slog.Logger) (string, error)
}

// Scheduler is the job-store style view of the engine, keyed by job id.
type Scheduler interface {
	AddJob(job *models.Job) (time.Time, error)
	RemoveJob(jobID string)
	GetJob(jobID string) (*models.Job, time.Time, bool)
	ModifyJob(job *models.Job) (time.Time, error)
}

type Config struct {
	PoolSize     int
	MisfireGrace time.Duration
	Tracer       trace.Tracer
}

type entry struct {
	job         *models.Job
	schedule    trigger.Schedule
	fingerprint string
	base        time.Time
	fireAt      time.Time
}

// oneShot is a popped non-repeating fire that has not finished yet.
type oneShot struct {
	fingerprint string
	scheduledAt time.Time
}

// fire is one due execution handed to the pool.
type fire struct {
	job         *models.Job
	scheduledAt time.Time
	repeating   bool
	next        *time.Time
}

// Engine is the in-process trigger engine. Its registry of armed entries is volatile; the
// state store is the durable record.
type Engine struct {
	logger       *slog.Logger
	executor     Executor
	emitter      Emitter
	tracer       trace.Tracer
	misfireGrace time.Duration
	pool         *semaphore.Weighted

	mu       sync.Mutex
	entries  map[string]*entry
	running  map[string]bool
	oneShots map[string]oneShot
	started  bool
	stopping bool

	wake      chan struct{}
	stop      chan struct{}
	loopDone  chan struct{}
	inFlight  sync.WaitGroup
	runCtx    context.Context
	cancelRun context.CancelFunc
}

func New(logger *slog.Logger, executor Executor, emitter Emitter, cfg Config) *Engine {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = DefaultMisfireGrace
	}

	if cfg.Tracer == nil {
		cfg.Tracer = otelhelper.NoopTracer()
	}

	runCtx, cancel := context.WithCancel(context.Background())

	return &Engine{
		logger:       logger.With("module", "engine"),
		executor:     executor,
		emitter:      emitter,
		tracer:       cfg.Tracer,
		misfireGrace: cfg.MisfireGrace,
		pool:         semaphore.NewWeighted(int64(cfg.PoolSize)),
		entries:      make(map[string]*entry),
		running:      make(map[string]bool),
		oneShots:     make(map[string]oneShot),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		runCtx:       runCtx,
		cancelRun:    cancel,
	}
}

// Start launches the timer loop. Jobs armed before Start fire once it runs.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()

		return
	}

	e.started = true
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Starting trigger engine")

	go e.loop()
}

// Arm computes the next fire time of job and registers it. Arming an armed job with the same
// operator and definition is a no-op returning the current fire time.
func (e *Engine) Arm(job *models.Job) (time.Time, error) {
	return e.arm(job, false)
}

func (e *Engine) arm(job *models.Job, mustExist bool) (time.Time, error) {
	now := time.Now()

	schedule, err := trigger.New(job.Definition.Trigger, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to arm job %s: %w", job.ID, err)
	}

	fingerprint, err := jobFingerprint(job)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to arm job %s: %w", job.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopping {
		return time.Time{}, fmt.Errorf("failed to arm job %s: engine is shutting down", job.ID)
	}

	existing, armed := e.entries[job.ID]

	if mustExist && !armed {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotArmed, job.ID)
	}

	if armed && existing.fingerprint == fingerprint {
		return existing.fireAt, nil
	}

	// a one-shot that is queued or running counts as armed until it finishes
	if shot, ok := e.oneShots[job.ID]; ok && !armed && shot.fingerprint == fingerprint {
		return shot.scheduledAt, nil
	}

	base, ok := schedule.Next(now)
	if !ok {
		return time.Time{}, fmt.Errorf("failed to arm job %s: %w", job.ID, trigger.ErrExhausted)
	}

	ent := &entry{
		job:         cloneJob(job),
		schedule:    schedule,
		fingerprint: fingerprint,
		base:        base,
		fireAt:      trigger.WithJitter(schedule, base),
	}

	e.entries[job.ID] = ent

	if armed {
		e.logger.Debug("Rearmed job with new definition", "job_id", job.ID, "next_fire_time", ent.fireAt)
	} else {
		event := events.NewJobEvent(events.JobAdded, job.ID, job.WorkflowID)
		event.NextFireTime = timePtr(ent.fireAt)
		e.emitter.Emit(event)

		e.logger.Debug("Armed job", "job_id", job.ID, "trigger", job.Definition.Trigger.Kind, "next_fire_time", ent.fireAt)
	}

	e.signal()

	return ent.fireAt, nil
}

// Disarm removes the armed entry of jobID. Unknown ids are ignored.
func (e *Engine) Disarm(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[jobID]
	if !ok {
		return
	}

	delete(e.entries, jobID)

	event := events.NewJobEvent(events.JobRemoved, jobID, ent.job.WorkflowID)
	event.Reason = events.RemovalDisarmed
	e.emitter.Emit(event)

	e.signal()
}

// IsArmed reports whether jobID has an armed entry or a one-shot fire that has not finished.
func (e *Engine) IsArmed(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.entries[jobID]; ok {
		return true
	}

	_, ok := e.oneShots[jobID]

	return ok
}

// NextFireTime returns the fire time of the armed entry of jobID.
func (e *Engine) NextFireTime(jobID string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[jobID]
	if !ok {
		return time.Time{}, false
	}

	return ent.fireAt, true
}

// ArmedCount returns the number of armed entries.
func (e *Engine) ArmedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.entries)
}

func (e *Engine) AddJob(job *models.Job) (time.Time, error) {
	return e.Arm(job)
}

func (e *Engine) RemoveJob(jobID string) {
	e.Disarm(jobID)
}

func (e *Engine) GetJob(jobID string) (*models.Job, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[jobID]
	if !ok {
		return nil, time.Time{}, false
	}

	return cloneJob(ent.job), ent.fireAt, true
}

func (e *Engine) ModifyJob(job *models.Job) (time.Time, error) {
	return e.arm(job, true)
}

// Shutdown disarms every job without emitting events, stops the timer and waits for running
// executions until ctx is done. Executions still running then are cancelled and abandoned.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()

		return nil
	}

	e.stopping = true
	disarmed := len(e.entries)
	e.entries = make(map[string]*entry)
	started := e.started
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Shutting down trigger engine", "disarmed", disarmed)

	close(e.stop)

	if started {
		<-e.loopDone
	}

	done := make(chan struct{})

	go func() {
		e.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancelRun()
		e.logger.InfoContext(ctx, "Trigger engine stopped")

		return nil
	case <-ctx.Done():
		e.mu.Lock()
		abandoned := make([]string, 0, len(e.running))

		for jobID := range e.running {
			abandoned = append(abandoned, jobID)
		}
		e.mu.Unlock()

		e.cancelRun()
		e.logger.WarnContext(ctx, "Abandoned running executions", "jobs", abandoned)

		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop() {
	defer close(e.loopDone)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, next := e.popDue(time.Now())

		for _, f := range due {
			e.submit(f)
		}

		wait := time.Hour
		if !next.IsZero() {
			wait = max(time.Until(next), 0)
		}

		timer.Reset(wait)

		select {
		case <-e.stop:
			return
		case <-e.wake:
		case <-timer.C:
		}
	}
}

// popDue removes due one-shot entries, advances due repeating ones and returns the fires to run
// with the earliest remaining fire time.
func (e *Engine) popDue(now time.Time) ([]fire, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		due      []fire
		earliest time.Time
	)

	for id, ent := range e.entries {
		if ent.fireAt.After(now) {
			if earliest.IsZero() || ent.fireAt.Before(earliest) {
				earliest = ent.fireAt
			}

			continue
		}

		f := fire{job: ent.job, scheduledAt: ent.fireAt}

		if !ent.schedule.Repeating() {
			// runs after the previous run of the same job finished; finishRun wakes the loop
			if e.running[id] {
				continue
			}

			delete(e.entries, id)
			e.oneShots[id] = oneShot{fingerprint: ent.fingerprint, scheduledAt: ent.fireAt}
			e.running[id] = true
			due = append(due, f)

			continue
		}

		base, ok := ent.schedule.Next(maxTime(ent.base, now))
		if ok {
			ent.base = base
			ent.fireAt = trigger.WithJitter(ent.schedule, base)
			f.repeating = true
			f.next = timePtr(ent.fireAt)

			if earliest.IsZero() || ent.fireAt.Before(earliest) {
				earliest = ent.fireAt
			}
		} else {
			delete(e.entries, id)
			e.oneShots[id] = oneShot{fingerprint: ent.fingerprint, scheduledAt: f.scheduledAt}
		}

		if e.running[id] {
			e.logger.Warn("Skipping fire, previous run still in progress",
				"job_id", id, "scheduled_at", f.scheduledAt)

			continue
		}

		e.running[id] = true
		due = append(due, f)
	}

	return due, earliest
}

func (e *Engine) submit(f fire) {
	e.inFlight.Add(1)

	go func() {
		defer e.inFlight.Done()

		err := e.pool.Acquire(e.runCtx, 1)
		if err != nil {
			e.finishRun(f.job.ID)
			e.logger.Warn("Execution abandoned before start", "job_id", f.job.ID, "error", err)

			return
		}
		defer e.pool.Release(1)

		e.run(f)
	}()
}

func (e *Engine) run(f fire) {
	job := f.job
	logger := e.logger.With("job_id", job.ID, "job_name", job.Name, "workflow_id", job.WorkflowID)

	defer e.finishRun(job.ID)

	if late := time.Since(f.scheduledAt); late > e.misfireGrace {
		logger.Warn("Missed fire beyond grace", "scheduled_at", f.scheduledAt, "late", late)

		event := events.NewJobEvent(events.JobMissed, job.ID, job.WorkflowID)
		event.ScheduledAt = timePtr(f.scheduledAt)
		e.emitter.Emit(event)
		e.complete(f)

		return
	}

	submitted := events.NewJobEvent(events.JobSubmitted, job.ID, job.WorkflowID)
	submitted.ScheduledAt = timePtr(f.scheduledAt)
	e.emitter.Emit(submitted)

	output, err := e.execute(f, logger)

	if err != nil {
		logger.Error("Job failed", "error", err)

		event := events.NewJobEvent(events.JobError, job.ID, job.WorkflowID)
		event.ScheduledAt = timePtr(f.scheduledAt)
		event.Output = output
		event.Exception = err.Error()
		e.emitter.Emit(event)
	} else {
		logger.Info("Job executed")

		event := events.NewJobEvent(events.JobExecuted, job.ID, job.WorkflowID)
		event.ScheduledAt = timePtr(f.scheduledAt)
		event.Output = output
		e.emitter.Emit(event)
	}

	e.complete(f)
}

func (e *Engine) execute(f fire, logger *slog.Logger) (output string, err error) {
	job := f.job

	ctx, span := otelhelper.StartSpan(e.runCtx, e.tracer, "job.execute",
		attribute.String(otelhelper.JobIDKey, job.ID),
		attribute.String(otelhelper.JobNameKey, job.Name),
		attribute.String(otelhelper.WorkflowIDKey, job.WorkflowID),
		attribute.String(otelhelper.OperatorIDKey, job.OperatorID),
		attribute.String(otelhelper.TriggerKindKey, string(job.Definition.Trigger.Kind)),
		attribute.String(otelhelper.ScheduledAtKey, f.scheduledAt.UTC().Format(time.RFC3339)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operator %s panicked: %v", job.OperatorID, r)
		}

		otelhelper.RecordOutcome(span, output, err)
	}()

	params, err := template.RenderParams(job.Definition.Params, template.JobContext(job, f.scheduledAt))
	if err != nil {
		return "", fmt.Errorf("failed to render params: %w", err)
	}

	return e.executor.Execute(ctx, job.OperatorID, params, logger)
}

// complete emits the post-fire event: removed for a finished trigger, scheduled with the next
// fire time for a repeating one that is still armed.
func (e *Engine) complete(f fire) {
	job := f.job

	if !f.repeating {
		event := events.NewJobEvent(events.JobRemoved, job.ID, job.WorkflowID)
		event.Reason = events.RemovalCompleted
		e.emitter.Emit(event)

		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[job.ID]
	if !ok {
		return
	}

	event := events.NewJobEvent(events.JobScheduled, job.ID, job.WorkflowID)
	event.NextFireTime = timePtr(ent.fireAt)
	e.emitter.Emit(event)
}

func (e *Engine) finishRun(jobID string) {
	e.mu.Lock()
	delete(e.running, jobID)
	delete(e.oneShots, jobID)
	e.mu.Unlock()

	e.signal()
}

func jobFingerprint(job *models.Job) (string, error) {
	raw, err := json.Marshal(struct {
		WorkflowID string               `json:"workflow_id"`
		Name       string               `json:"name"`
		OperatorID string               `json:"operator_id"`
		Definition models.JobDefinition `json:"definition"`
	}{job.WorkflowID, job.Name, job.OperatorID, job.Definition})
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint job: %w", err)
	}

	return string(raw), nil
}

func cloneJob(job *models.Job) *models.Job {
	c := *job
	c.Definition.Params = maps.Clone(job.Definition.Params)

	if job.NextFireTime != nil {
		c.NextFireTime = timePtr(*job.NextFireTime)
	}

	return &c
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}

	return b
}
