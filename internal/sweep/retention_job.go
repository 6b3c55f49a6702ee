package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/metrics"
)

const defaultRetentionDays = 30

type outboxPruner interface {
	DeleteFinishedBefore(cutoff time.Time) (int64, error)
}

type notificationPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJobParams configure the retention sweep.
type RetentionJobParams struct {
	Logger        *logger.Logger
	Outbox        outboxPruner
	Notifications notificationPruner
	Metrics       *metrics.SweepJobMetrics
	RetentionDays int
}

type retentionJob struct {
	logg          *logger.Logger
	outbox        outboxPruner
	notifications notificationPruner
	metrics       *metrics.SweepJobMetrics
	retention     int
	now           func() time.Time
}

// NewRetentionJob builds the sweep job that prunes published outbox rows
// and read notifications past the retention window.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	return &retentionJob{
		logg:          params.Logger,
		outbox:        params.Outbox,
		notifications: params.Notifications,
		metrics:       params.Metrics,
		retention:     retention,
		now:           time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return "retention_cleanup" }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)

	var errs []error
	var pruned int64

	outboxRows, err := j.outbox.DeleteFinishedBefore(cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune outbox rows: %w", err))
	}
	pruned += outboxRows

	notificationRows, err := j.notifications.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune notifications: %w", err))
	}
	pruned += notificationRows

	if j.metrics != nil {
		j.metrics.AddProcessed(j.Name(), int(pruned))
	}
	if pruned > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":            cutoff,
			"retention_days":    j.retention,
			"outbox_rows":       outboxRows,
			"notification_rows": notificationRows,
		})
		j.logg.Info(logCtx, "retention cleanup complete")
	}
	return multierr.Combine(errs...)
}
