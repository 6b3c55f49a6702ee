package sweep

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bijouxtrade/bijoux-backend/internal/approvals"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/metrics"
)

const escalationBatchSize = 100

type escalator interface {
	ListEscalationCandidates(ctx context.Context, batch int) ([]models.ApprovalRequest, error)
	EscalateDue(ctx context.Context, requestID uuid.UUID) (*approvals.ActionResult, error)
}

// EscalationJobParams configure the escalation-deadline sweep.
type EscalationJobParams struct {
	Logger    *logger.Logger
	Approvals escalator
	Metrics   *metrics.SweepJobMetrics
	Batch     int
}

type escalationJob struct {
	logg      *logger.Logger
	approvals escalator
	metrics   *metrics.SweepJobMetrics
	batch     int
}

// NewEscalationJob builds the sweep job that escalates requests whose active
// level sat past its deadline. Escalation is idempotent and version-checked,
// so a request rejected while the sweep is mid-flight is never resurrected.
func NewEscalationJob(params EscalationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Approvals == nil {
		return nil, fmt.Errorf("approval service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = escalationBatchSize
	}
	return &escalationJob{
		logg:      params.Logger,
		approvals: params.Approvals,
		metrics:   params.Metrics,
		batch:     batch,
	}, nil
}

func (j *escalationJob) Name() string { return "approval_escalation" }

func (j *escalationJob) Run(ctx context.Context) error {
	due, err := j.approvals.ListEscalationCandidates(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list escalation candidates: %w", err)
	}

	var errs []error
	escalated := 0
	for _, request := range due {
		if _, err := j.approvals.EscalateDue(ctx, request.ID); err != nil {
			// conflicts mean a live action beat the sweep to the request
			if pkgerrors.HasCode(err, pkgerrors.CodeConflict) || pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			// a missing escalation target is an admin configuration problem,
			// logged loudly but not retried every cycle as a job failure
			if pkgerrors.HasCode(err, pkgerrors.CodeInvalidConfig) {
				logCtx := j.logg.WithField(ctx, "request_id", request.ID.String())
				j.logg.Error(logCtx, "escalation misconfigured", err)
				continue
			}
			errs = append(errs, fmt.Errorf("escalate request %s: %w", request.ID, err))
			continue
		}
		escalated++
	}
	if j.metrics != nil {
		j.metrics.AddProcessed(j.Name(), escalated)
	}
	if escalated > 0 {
		logCtx := j.logg.WithField(ctx, "escalated", escalated)
		j.logg.Info(logCtx, "overdue approval requests escalated")
	}
	return multierr.Combine(errs...)
}
