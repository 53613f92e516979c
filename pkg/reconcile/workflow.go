package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukex/jobflow/pkg/definition"
	"github.com/dukex/jobflow/pkg/models"
	"github.com/dukex/jobflow/pkg/otelhelper"
	"github.com/dukex/jobflow/pkg/persistence"
)

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeModified
)

type applyResult struct {
	workflowID string
	outcome    outcome
	disarm     []string
}

// applyDocument brings the stored workflow named by doc in line with it, in one unit of work.
// Jobs to disarm are returned so the caller disarms them only after the commit.
func (l *Loop) applyDocument(ctx context.Context, doc definition.Document) (applyResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "reconcile.workflow")
	defer span.End()

	withWorkflow(span, doc.Spec.Workflow.Name)

	var res applyResult

	err := l.store.Do(ctx, func(uow persistence.UnitOfWork) error {
		res = applyResult{}

		workflow, err := uow.Workflows().Get(ctx, persistence.WorkflowFilter{Name: doc.Spec.Workflow.Name})
		if err != nil {
			return fmt.Errorf("failed to get workflow: %w", err)
		}

		switch {
		case workflow == nil:
			return l.createWorkflow(ctx, uow, doc, &res)

		case workflow.Active && workflow.Fingerprint == doc.Fingerprint:
			res.workflowID = workflow.ID
			res.outcome = outcomeUnchanged

			changes := persistence.WorkflowChanges{}
			dirty := false

			if workflow.ModifiedSinceLastLoad {
				changes.ModifiedSinceLastLoad = persistence.Bool(false)
				dirty = true
			}

			if workflow.SourcePath != doc.Path || !workflow.FileExists {
				changes.SourcePath = persistence.String(doc.Path)
				changes.FileExists = persistence.Bool(true)
				dirty = true
			}

			if !dirty {
				return nil
			}

			_, err := uow.Workflows().Update(ctx, persistence.WorkflowFilter{ID: workflow.ID}, changes)

			return err

		default:
			return l.modifyWorkflow(ctx, uow, workflow, doc, &res)
		}
	})
	if err != nil {
		otelhelper.SetError(span, err)
		return applyResult{}, err
	}

	return res, nil
}

func (l *Loop) createWorkflow(ctx context.Context, uow persistence.UnitOfWork, doc definition.Document, res *applyResult) error {
	workflow := &models.Workflow{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Name:        doc.Spec.Workflow.Name,
		SourcePath:  doc.Path,
		FileExists:  true,
		Fingerprint: doc.Fingerprint,
		Active:      true,
	}

	err := uow.Workflows().Add(ctx, workflow)
	if err != nil {
		return err
	}

	_, err = upsertJobs(ctx, uow, workflow.ID, doc.Spec.Workflow.Jobs)
	if err != nil {
		return err
	}

	err = recordWorkflowEvent(ctx, uow, workflow.ID, models.EventWorkflowCreated)
	if err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "Created workflow", "workflow", workflow.Name, "jobs", len(doc.Spec.Workflow.Jobs))

	res.workflowID = workflow.ID
	res.outcome = outcomeCreated

	return nil
}

func (l *Loop) modifyWorkflow(ctx context.Context, uow persistence.UnitOfWork, workflow *models.Workflow, doc definition.Document, res *applyResult) error {
	_, err := uow.Workflows().Update(ctx, persistence.WorkflowFilter{ID: workflow.ID}, persistence.WorkflowChanges{
		SourcePath:            persistence.String(doc.Path),
		FileExists:            persistence.Bool(true),
		Fingerprint:           persistence.String(doc.Fingerprint),
		ModifiedSinceLastLoad: persistence.Bool(true),
		Active:                persistence.Bool(true),
	})
	if err != nil {
		return err
	}

	jobIDs, err := upsertJobs(ctx, uow, workflow.ID, doc.Spec.Workflow.Jobs)
	if err != nil {
		return err
	}

	err = recordWorkflowEvent(ctx, uow, workflow.ID, models.EventWorkflowModified)
	if err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "Workflow definition changed", "workflow", workflow.Name, "reactivated", !workflow.Active)

	res.workflowID = workflow.ID
	res.outcome = outcomeModified
	res.disarm = jobIDs

	return nil
}

// upsertJobs writes specs as the jobs of workflowID, matched by name. Stored jobs missing from
// specs are deactivated. It returns the ids of every job of the workflow.
func upsertJobs(ctx context.Context, uow persistence.UnitOfWork, workflowID string, specs []*models.JobSpec) ([]string, error) {
	existing, err := uow.Jobs().List(ctx, persistence.JobFilter{WorkflowID: workflowID})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	byName := make(map[string]*models.Job, len(existing))
	for _, job := range existing {
		byName[job.Name] = job
	}

	ids := make(map[string]string, len(specs))

	for _, spec := range specs {
		if job, ok := byName[spec.Name]; ok {
			ids[spec.Name] = job.ID
		} else {
			ids[spec.Name] = uuid.Must(uuid.NewV7()).String()
		}
	}

	all := make([]string, 0, len(existing)+len(specs))

	for position, spec := range specs {
		dependsOn := ""
		if spec.DependsOn != "" {
			dependsOn = ids[spec.DependsOn]
		}

		id := ids[spec.Name]
		all = append(all, id)

		if _, ok := byName[spec.Name]; ok {
			_, err := uow.Jobs().Update(ctx, persistence.JobFilter{ID: id}, persistence.JobChanges{
				Position:          &position,
				OperatorID:        persistence.String(spec.Operator),
				Definition:        definitionPtr(spec.Definition()),
				DependsOn:         persistence.String(dependsOn),
				DependencyPattern: persistence.String(spec.DependencyLogsPattern),
				RunIfPatternMatch: persistence.Bool(spec.RunIfMatch()),
				Active:            persistence.Bool(true),
			})
			if err != nil {
				return nil, persistence.NewJobError("Update", workflowID, id, err)
			}

			continue
		}

		err := uow.Jobs().Add(ctx, &models.Job{
			ID:                id,
			WorkflowID:        workflowID,
			Name:              spec.Name,
			Position:          position,
			OperatorID:        spec.Operator,
			Definition:        spec.Definition(),
			DependsOn:         dependsOn,
			DependencyPattern: spec.DependencyLogsPattern,
			RunIfPatternMatch: spec.RunIfMatch(),
			Active:            true,
			Status:            models.JobStatusPending,
		})
		if err != nil {
			return nil, persistence.NewJobError("Add", workflowID, id, err)
		}
	}

	for _, job := range existing {
		if _, ok := ids[job.Name]; ok {
			continue
		}

		all = append(all, job.ID)

		if !job.Active {
			continue
		}

		_, err := uow.Jobs().Update(ctx, persistence.JobFilter{ID: job.ID}, persistence.JobChanges{
			Active:            persistence.Bool(false),
			ClearNextFireTime: true,
		})
		if err != nil {
			return nil, persistence.NewJobError("Update", workflowID, job.ID, err)
		}
	}

	return all, nil
}

func definitionPtr(d models.JobDefinition) *models.JobDefinition {
	return &d
}
