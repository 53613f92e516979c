package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	err := NewApp().Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewApp returns the jobflow command tree.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:                  "jobflow",
		Usage:                 "Run jobs declared in workflow definition files",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
			NewListCommand(),
		},
	}
}

func databaseURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Database connection URL (postgres://, sqlite://)",
		Required: true,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}

func workflowsPathFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "workflows-path",
		Usage:   "Directory holding the workflow definition files",
		Value:   "./workflows",
		Sources: cli.EnvVars("WORKFLOWS_PATH"),
	}
}

func pluginsPathFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "plugins-path",
		Usage:   "Path to the directory containing operator plugins",
		Sources: cli.EnvVars("PLUGINS_PATH"),
	}
}
