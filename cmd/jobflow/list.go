package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/jobflow/pkg/cmd"
	"github.com/dukex/jobflow/pkg/log"
	"github.com/dukex/jobflow/pkg/persistence"
)

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List stored workflows and the status of their jobs",
		Flags: []cli.Flag{
			databaseURLFlag(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include inactive workflows and jobs",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := slog.With("module", "jobflow", "action", "list")
			out := command.Root().Writer

			store, err := cmd.NewStore(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.Error("Failed to close store", "error", err)
				}
			}()

			var active *bool
			if !command.Bool("all") {
				active = persistence.Bool(true)
			}

			return store.Do(ctx, func(uow persistence.UnitOfWork) error {
				workflows, err := uow.Workflows().List(ctx, persistence.WorkflowFilter{Active: active})
				if err != nil {
					return err
				}

				fmt.Fprintln(out, "Workflows:")
				fmt.Fprintln(out, "==========")

				total := 0

				for _, workflow := range workflows {
					fmt.Fprintf(out, "\nWorkflow: %s (%s)\n", workflow.Name, workflow.ID)
					fmt.Fprintf(out, "Source: %s\n", workflow.SourcePath)
					fmt.Fprintf(out, "Active: %t\n", workflow.Active)

					jobs, err := uow.Jobs().List(ctx, persistence.JobFilter{WorkflowID: workflow.ID, Active: active})
					if err != nil {
						return err
					}

					for _, job := range jobs {
						fmt.Fprintf(out, "  - %s [%s] trigger=%s status=%s", job.Name, job.OperatorID, job.Definition.Trigger.Kind, job.Status)

						if job.NextFireTime != nil {
							fmt.Fprintf(out, " next=%s", job.NextFireTime.UTC().Format(time.RFC3339))
						}

						fmt.Fprintln(out)

						total++
					}
				}

				fmt.Fprintf(out, "\nTotal workflows: %d\n", len(workflows))
				fmt.Fprintf(out, "Total jobs: %d\n", total)

				return nil
			})
		},
	}
}
