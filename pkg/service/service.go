package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/jobflow/pkg/cmd"
	"github.com/dukex/jobflow/pkg/definition"
	"github.com/dukex/jobflow/pkg/dispatcher"
	"github.com/dukex/jobflow/pkg/engine"
	"github.com/dukex/jobflow/pkg/eventbus"
	"github.com/dukex/jobflow/pkg/lock"
	"github.com/dukex/jobflow/pkg/otelhelper"
	"github.com/dukex/jobflow/pkg/persistence"
	"github.com/dukex/jobflow/pkg/reconcile"
	"github.com/dukex/jobflow/pkg/registry"
	"github.com/dukex/jobflow/pkg/web"
)

// Service owns one instance of every component. Components are built in New and never shared
// through package state.
type Service struct {
	cfg    Config
	logger *slog.Logger

	store      persistence.Store
	registry   *registry.Registry
	bus        eventbus.EventBus
	outbox     *eventbus.Outbox
	engine     *engine.Engine
	dispatcher *dispatcher.Dispatcher
	loop       *reconcile.Loop
	api        *web.API
	lock       *lock.Lock

	tracer         trace.Tracer
	shutdownTracer func(context.Context) error

	runCtx    context.Context
	cancelRun context.CancelFunc
	apiErr    chan error
}

// New builds the service. Anything opened before a failure is closed again.
func New(ctx context.Context, logger *slog.Logger, cfg Config) (svc *Service, err error) {
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		logger: logger.With("module", "service"),
		tracer: otelhelper.NoopTracer(),
		apiErr: make(chan error, 1),
	}

	defer func() {
		if err != nil {
			s.closeResources(context.Background())
		}
	}()

	if cfg.OTelEnabled {
		s.tracer, s.shutdownTracer, err = otelhelper.NewTracer(ctx, "jobflow")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	if cfg.RedisURL != "" {
		s.lock, err = lock.NewFromURL(ctx, logger, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
	}

	s.registry, err = cmd.NewRegistry(logger, cfg.PluginsPath)
	if err != nil {
		return nil, err
	}

	store, err := cmd.NewStore(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s.store = store

	s.bus, err = cmd.NewEventBus(cfg.EventBus, logger, cfg.KafkaBrokers)
	if err != nil {
		return nil, err
	}

	s.outbox = eventbus.NewOutbox(logger, s.bus)

	s.engine = engine.New(logger, s.registry, s.outbox, engine.Config{
		PoolSize:     cfg.WorkerPoolSize,
		MisfireGrace: cfg.MisfireGrace,
		Tracer:       s.tracer,
	})

	s.dispatcher = dispatcher.New(logger, s.store, s.engine)

	source := definition.NewSource(logger, cfg.WorkflowsPath, s.registry)

	s.loop = reconcile.New(logger, s.store, source, s.engine, reconcile.Config{
		Interval: cfg.ReconcileInterval,
		Tracer:   s.tracer,
	})

	if cfg.APIPort > 0 {
		s.api = web.NewAPI(logger, s.store, s.loop, s.engine)
	}

	return s, nil
}

// Start takes the scheduling authority when configured and starts every component.
func (s *Service) Start(ctx context.Context) error {
	if s.lock != nil {
		err := s.lock.Acquire(ctx)
		if err != nil {
			return err
		}
	}

	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))

	err := s.dispatcher.Start(s.runCtx, s.bus)
	if err != nil {
		return err
	}

	s.engine.Start(s.runCtx)
	s.loop.Start(s.runCtx)

	if s.api != nil {
		go func() {
			s.apiErr <- s.api.Start(s.cfg.APIPort)
		}()
	}

	s.logger.InfoContext(ctx, "Service started",
		"workflows_path", s.cfg.WorkflowsPath,
		"event_bus", s.cfg.EventBus,
		"operators", s.registry.IDs())

	return nil
}

// Run starts the service and blocks until ctx is done, the API fails or the authority lock is
// lost, then shuts down within the configured timeout.
func (s *Service) Run(ctx context.Context) error {
	err := s.Start(ctx)
	if err != nil {
		shutdownErr := s.Shutdown(context.Background())

		return errors.Join(err, shutdownErr)
	}

	var lost <-chan struct{}
	if s.lock != nil {
		lost = s.lock.Lost()
	}

	var runErr error

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down gracefully...")
	case err := <-s.apiErr:
		runErr = fmt.Errorf("api server stopped: %w", err)
	case <-lost:
		runErr = lock.ErrNotHeld
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	return errors.Join(runErr, s.Shutdown(shutdownCtx))
}

// Shutdown stops the components in dependency order: reconciliation, engine, event delivery,
// API, store and finally the authority lock.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error

	s.loop.Stop()

	err := s.engine.Shutdown(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	err = s.outbox.Close(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("outbox: %w", err))
	}

	err = s.bus.Close()
	if err != nil {
		errs = append(errs, fmt.Errorf("event bus: %w", err))
	}

	if s.cancelRun != nil {
		s.cancelRun()
	}

	if s.api != nil {
		err = s.api.Shutdown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("api: %w", err))
		}
	}

	errs = append(errs, s.closeStoreAndLock(ctx)...)

	s.logger.InfoContext(ctx, "Service stopped")

	return errors.Join(errs...)
}

func (s *Service) closeStoreAndLock(ctx context.Context) []error {
	var errs []error

	if s.store != nil {
		err := s.store.Close(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if s.shutdownTracer != nil {
		err := s.shutdownTracer(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}

	if s.lock != nil {
		err := s.lock.Close(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("lock: %w", err))
		}
	}

	return errs
}

// closeResources releases what New opened when construction fails midway.
func (s *Service) closeResources(ctx context.Context) {
	if s.bus != nil {
		_ = s.bus.Close()
	}

	for _, err := range s.closeStoreAndLock(ctx) {
		s.logger.ErrorContext(ctx, "Failed to release resource", "error", err)
	}
}

// Store exposes the state store, for embedding callers and tests.
func (s *Service) Store() persistence.Store {
	return s.store
}

// Engine exposes the trigger engine.
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Reconciler exposes the reconciliation loop.
func (s *Service) Reconciler() *reconcile.Loop {
	return s.loop
}
