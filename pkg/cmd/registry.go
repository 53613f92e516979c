// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/jobflow/pkg/registry"
)

// NewRegistry returns a registry holding the built-in operators plus the plugins found under
// pluginsPath.
func NewRegistry(log *slog.Logger, pluginsPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	err := reg.RegisterDefaultOperators()
	if err != nil {
		return nil, fmt.Errorf("failed to register built-in operators: %w", err)
	}

	if pluginsPath == "" {
		return reg, nil
	}

	_, err = reg.LoadOperatorPlugins(pluginsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load operator plugins: %w", err)
	}

	return reg, nil
}
