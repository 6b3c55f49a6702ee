package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/metrics"
)

const rolloverBatchSize = 200

type limitRoller interface {
	ListExpired(ctx context.Context, before time.Time, batch int) ([]models.SpendingLimit, error)
	RollOverIfExpired(ctx context.Context, limit models.SpendingLimit, now time.Time) (*models.SpendingLimit, error)
}

// RolloverJobParams configure the period rollover sweep.
type RolloverJobParams struct {
	Logger  *logger.Logger
	Limits  limitRoller
	Metrics *metrics.SweepJobMetrics
	Batch   int
}

type rolloverJob struct {
	logg    *logger.Logger
	limits  limitRoller
	metrics *metrics.SweepJobMetrics
	batch   int
}

// NewRolloverJob builds the sweep job that opens fresh periods for limits
// whose window has ended.
func NewRolloverJob(params RolloverJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Limits == nil {
		return nil, fmt.Errorf("limit service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = rolloverBatchSize
	}
	return &rolloverJob{
		logg:    params.Logger,
		limits:  params.Limits,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

func (j *rolloverJob) Name() string { return "limit_period_rollover" }

func (j *rolloverJob) Run(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := j.limits.ListExpired(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("list expired limits: %w", err)
	}

	var errs []error
	rolled := 0
	for _, limit := range expired {
		if _, err := j.limits.RollOverIfExpired(ctx, limit, now); err != nil {
			// a conflict means another instance rolled this limit first
			if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("roll over limit %s: %w", limit.ID, err))
			continue
		}
		rolled++
	}
	if j.metrics != nil {
		j.metrics.AddProcessed(j.Name(), rolled)
	}
	if rolled > 0 {
		logCtx := j.logg.WithField(ctx, "rolled", rolled)
		j.logg.Info(logCtx, "expired limit periods rolled over")
	}
	return multierr.Combine(errs...)
}
