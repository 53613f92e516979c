package web

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/jobflow/pkg/persistence"
)

type API struct {
	logger     *slog.Logger
	store      persistence.Store
	reconciler Reconciler
	scheduler  Scheduler
	validate   *validator.Validate
	app        *fiber.App
}

func NewAPI(logger *slog.Logger, store persistence.Store, reconciler Reconciler, scheduler Scheduler) *API {
	a := &API{
		logger:     logger.With("module", "web"),
		store:      store,
		reconciler: reconciler,
		scheduler:  scheduler,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}

	a.app = a.newApp()

	return a
}

func (a *API) App() *fiber.App {
	return a.app
}

func (a *API) newApp() *fiber.App {
	handlers := NewAPIHandlers(a.store, a.reconciler, a.scheduler, a.validate)

	app := fiber.New()
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
			defer cancel()

			return a.store.HealthCheck(ctx) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("jobflow")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Get("/:name", handlers.GetWorkflow)
	w.Get("/:name/jobs", handlers.GetWorkflowJobs)

	app.Get("/jobs/:id/events", handlers.GetJobEvents)
	app.Post("/reconcile", handlers.Reconcile)

	return app
}

// Start serves the API until Shutdown; it blocks.
func (a *API) Start(port int) error {
	a.logger.Info("Starting API", "port", port)

	return a.app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.app.ShutdownWithContext(ctx)
}
