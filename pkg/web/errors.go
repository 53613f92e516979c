package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/jobflow/pkg/persistence"
	"github.com/dukex/jobflow/pkg/reconcile"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handleError maps store and reconciliation errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, persistence.ErrWorkflowNotFound):
		return notFound(c, "workflow_not_found", "workflow not found")

	case errors.Is(err, persistence.ErrJobNotFound):
		return notFound(c, "job_not_found", "job not found")

	case errors.Is(err, reconcile.ErrCycleInProgress):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("cycle_in_progress").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, reconcile.ErrStopped):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("shutting_down").
			WithDetail(err.Error())

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
