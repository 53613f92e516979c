// Package dependency decides which downstream jobs become eligible after a producer job executes.
package dependency

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/persistence"
)

// Eligible applies the pattern gate of job to the producer output. A job without a pattern is
// always eligible; otherwise it is eligible when the case-insensitive substring match agrees
// with RunIfPatternMatch.
func Eligible(job *models.Job, output string) bool {
	if job.DependencyPattern == "" {
		return true
	}

	matches := strings.Contains(strings.ToLower(output), strings.ToLower(job.DependencyPattern))

	return matches == job.RunIfPatternMatch
}

// ResolveDependents returns the active jobs depending on producerJobID that are eligible to run
// given the producer's output.
func ResolveDependents(ctx context.Context, uow persistence.UnitOfWork, producerJobID, output string) ([]*models.Job, error) {
	candidates, err := uow.Jobs().List(ctx, persistence.JobFilter{
		DependsOn: producerJobID,
		Active:    persistence.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dependents of %s: %w", producerJobID, err)
	}

	eligible := make([]*models.Job, 0, len(candidates))

	for _, job := range candidates {
		if Eligible(job, output) {
			eligible = append(eligible, job)
		}
	}

	return eligible, nil
}
