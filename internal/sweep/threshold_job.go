package sweep

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/metrics"
)

const thresholdBatchSize = 200

type warningLister interface {
	ListOverWarning(ctx context.Context, batch int) ([]models.SpendingLimit, error)
}

type alertEvaluator interface {
	EvaluateLimit(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit) error
}

// ThresholdJobParams configure the warning-threshold sweep.
type ThresholdJobParams struct {
	Logger  *logger.Logger
	DB      *gorm.DB
	Limits  warningLister
	Alerts  alertEvaluator
	Metrics *metrics.SweepJobMetrics
	Batch   int
}

type thresholdJob struct {
	logg    *logger.Logger
	db      *gorm.DB
	limits  warningLister
	alerts  alertEvaluator
	metrics *metrics.SweepJobMetrics
	batch   int
}

// NewThresholdJob builds the sweep job that raises alerts for limits sitting
// at or over their warning threshold. Alert creation is deduplicated per
// limit and period, so re-sweeping the same limit is harmless.
func NewThresholdJob(params ThresholdJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if params.Limits == nil {
		return nil, fmt.Errorf("limit service required")
	}
	if params.Alerts == nil {
		return nil, fmt.Errorf("alert service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = thresholdBatchSize
	}
	return &thresholdJob{
		logg:    params.Logger,
		db:      params.DB,
		limits:  params.Limits,
		alerts:  params.Alerts,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

func (j *thresholdJob) Name() string { return "limit_threshold_alerts" }

func (j *thresholdJob) Run(ctx context.Context) error {
	over, err := j.limits.ListOverWarning(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list limits over warning: %w", err)
	}

	var errs []error
	evaluated := 0
	for _, limit := range over {
		err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return j.alerts.EvaluateLimit(ctx, tx, limit)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("evaluate limit %s: %w", limit.ID, err))
			continue
		}
		evaluated++
	}
	if j.metrics != nil {
		j.metrics.AddProcessed(j.Name(), evaluated)
	}
	return multierr.Combine(errs...)
}
