package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/jobflow/pkg/log"
	"github.com/dukex/jobflow/pkg/service"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the scheduler and keep it in sync with the workflow definitions",
		Flags: []cli.Flag{
			databaseURLFlag(),
			workflowsPathFlag(),
			pluginsPathFlag(),
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses, required with --event-bus kafka",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "reconcile-interval",
				Usage:   "Time between two reconciliation cycles",
				Sources: cli.EnvVars("RECONCILE_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "worker-pool-size",
				Usage:   "Maximum number of jobs executing at once",
				Sources: cli.EnvVars("WORKER_POOL_SIZE"),
			},
			&cli.DurationFlag{
				Name:    "misfire-grace",
				Usage:   "How late a fire may start before it is reported as missed",
				Sources: cli.EnvVars("MISFIRE_GRACE"),
			},
			&cli.DurationFlag{
				Name:    "shutdown-timeout",
				Usage:   "Maximum time to wait for running jobs on shutdown",
				Sources: cli.EnvVars("SHUTDOWN_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used to hold the scheduling lock (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "api-port",
				Usage:   "Port of the read-only HTTP API (disabled when 0)",
				Value:   0,
				Sources: cli.EnvVars("API_PORT"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("jobflow")

			cfg := service.Config{
				DatabaseURL:       command.String("database-url"),
				WorkflowsPath:     command.String("workflows-path"),
				EventBus:          command.String("event-bus"),
				KafkaBrokers:      command.StringSlice("kafka-brokers"),
				ReconcileInterval: command.Duration("reconcile-interval"),
				WorkerPoolSize:    command.Int("worker-pool-size"),
				MisfireGrace:      command.Duration("misfire-grace"),
				ShutdownTimeout:   command.Duration("shutdown-timeout"),
				RedisURL:          command.String("redis-url"),
				APIPort:           command.Int("api-port"),
				PluginsPath:       command.String("plugins-path"),
				OTelEnabled:       command.Bool("otel-enabled"),
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := service.New(ctx, slog.Default(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize jobflow: %w", err)
			}

			logger.Info("Starting jobflow", "workflows_path", cfg.WorkflowsPath, "event_bus", cfg.EventBus)

			return svc.Run(ctx)
		},
	}
}
