package web

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
	"github.com/dukex/jobflow/pkg/reconcile"
)

// Reconciler runs a reconciliation cycle on demand.
type Reconciler interface {
	RunCycle(ctx context.Context) (reconcile.Report, error)
}

// Scheduler reports the engine view of a job.
type Scheduler interface {
	NextFireTime(jobID string) (time.Time, bool)
}

type APIHandlers struct {
	store      persistence.Store
	reconciler Reconciler
	scheduler  Scheduler
	validator  *validator.Validate
}

func NewAPIHandlers(store persistence.Store, reconciler Reconciler, scheduler Scheduler, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		store:      store,
		reconciler: reconciler,
		scheduler:  scheduler,
		validator:  validator,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	query := ListWorkflowsQuery{Active: c.Query("active")}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	filter := persistence.WorkflowFilter{}
	if query.Active != "" {
		active, _ := strconv.ParseBool(query.Active)
		filter.Active = persistence.Bool(active)
	}

	ctx := c.Context()

	var workflows []*models.Workflow

	err := h.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		var err error
		workflows, err = uow.Workflows().List(ctx, filter)

		return err
	})
	if err != nil {
		return handleError(c, err)
	}

	if workflows == nil {
		workflows = []*models.Workflow{}
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, jobs, err := h.loadWorkflow(c.Context(), c.Params("name"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(WorkflowResponse{Workflow: workflow, Jobs: jobs})
}

func (h *APIHandlers) GetWorkflowJobs(c fiber.Ctx) error {
	_, jobs, err := h.loadWorkflow(c.Context(), c.Params("name"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(jobs)
}

func (h *APIHandlers) loadWorkflow(ctx context.Context, name string) (*models.Workflow, []JobResponse, error) {
	var (
		workflow *models.Workflow
		jobs     []*models.Job
	)

	err := h.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		var err error

		workflow, err = uow.Workflows().Get(ctx, persistence.WorkflowFilter{Name: name})
		if err != nil {
			return err
		}

		if workflow == nil {
			return persistence.NewWorkflowError("Get", name, persistence.ErrWorkflowNotFound)
		}

		jobs, err = uow.Jobs().List(ctx, persistence.JobFilter{WorkflowID: workflow.ID})

		return err
	})
	if err != nil {
		return nil, nil, err
	}

	responses := make([]JobResponse, 0, len(jobs))

	for _, job := range jobs {
		response := JobResponse{Job: job}

		if fireAt, ok := h.scheduler.NextFireTime(job.ID); ok {
			response.Armed = true
			response.ArmedFireAt = &fireAt
		}

		responses = append(responses, response)
	}

	return workflow, responses, nil
}

func (h *APIHandlers) GetJobEvents(c fiber.Ctx) error {
	query := ListEventsQuery{}

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		query.Limit = n
	}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	ctx := c.Context()
	jobID := c.Params("id")

	var list []*models.Event

	err := h.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		job, err := uow.Jobs().Get(ctx, persistence.JobFilter{ID: jobID})
		if err != nil {
			return err
		}

		if job == nil {
			return persistence.NewJobError("Get", "", jobID, persistence.ErrJobNotFound)
		}

		list, err = uow.Events().List(ctx, persistence.EventFilter{
			ModelKind: models.ModelKindJob,
			ModelID:   jobID,
			Limit:     query.Limit,
		})

		return err
	})
	if err != nil {
		return handleError(c, err)
	}

	if list == nil {
		list = []*models.Event{}
	}

	return c.JSON(list)
}

func (h *APIHandlers) Reconcile(c fiber.Ctx) error {
	report, err := h.reconciler.RunCycle(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(report)
}
