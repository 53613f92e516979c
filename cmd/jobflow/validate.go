package main

import (
	"context"
	"fmt"
	"log/slog"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/jobflow/pkg/cmd"
	"github.com/dukex/jobflow/pkg/definition"
	"github.com/dukex/jobflow/pkg/log"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the workflow definition files without touching the store",
		Flags: []cli.Flag{
			workflowsPathFlag(),
			pluginsPathFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := slog.With("module", "jobflow", "action", "validate")
			out := command.Root().Writer

			registry, err := cmd.NewRegistry(logger, command.String("plugins-path"))
			if err != nil {
				return err
			}

			source := definition.NewSource(logger, command.String("workflows-path"), registry)

			documents, err := source.Load(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Workflow Validation Results:")
			fmt.Fprintln(out, "============================")

			invalid := 0

			for _, doc := range documents {
				if !doc.Valid() {
					invalid++

					fmt.Fprintf(out, "\n%s\n    ❌ INVALID: %v\n", doc.Path, doc.Err)

					continue
				}

				fmt.Fprintf(out, "\n%s\n    ✅ VALID: workflow %s, %d jobs\n", doc.Path, doc.Name, len(doc.Spec.Workflow.Jobs))
			}

			fmt.Fprintf(out, "\nValidation Summary:\n")
			fmt.Fprintf(out, "  Total workflows: %d\n", len(documents))
			fmt.Fprintf(out, "  Valid workflows: %d\n", len(documents)-invalid)
			fmt.Fprintf(out, "  Invalid workflows: %d\n", invalid)

			if invalid > 0 {
				return fmt.Errorf("found %d invalid workflows", invalid)
			}

			fmt.Fprintln(out, "All workflows are valid! ✅")

			return nil
		},
	}
}
