package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/internal/approvals"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

type fakeLimitRoller struct {
	expired []models.SpendingLimit
	rollFn  func(limit models.SpendingLimit) error
	rolled  int
}

func (f *fakeLimitRoller) ListExpired(ctx context.Context, before time.Time, batch int) ([]models.SpendingLimit, error) {
	return f.expired, nil
}

func (f *fakeLimitRoller) RollOverIfExpired(ctx context.Context, limit models.SpendingLimit, now time.Time) (*models.SpendingLimit, error) {
	if f.rollFn != nil {
		if err := f.rollFn(limit); err != nil {
			return nil, err
		}
	}
	f.rolled++
	rolled := limit
	rolled.CurrentSpending = decimal.Zero
	return &rolled, nil
}

func expiredLimit() models.SpendingLimit {
	return models.SpendingLimit{
		ID:         uuid.New(),
		EntityType: enums.SpendingEntityTypeEmployee,
		EntityID:   uuid.New(),
		Period:     enums.LimitPeriodMonthly,
	}
}

func TestRolloverJobSkipsConflicts(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "sweep-test"})
	contested := expiredLimit()
	limits := &fakeLimitRoller{
		expired: []models.SpendingLimit{expiredLimit(), contested, expiredLimit()},
		rollFn: func(limit models.SpendingLimit) error {
			if limit.ID == contested.ID {
				return pkgerrors.New(pkgerrors.CodeConflict, "limit version changed during rollover")
			}
			return nil
		},
	}
	job, err := NewRolloverJob(RolloverJobParams{Logger: logg, Limits: limits})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if limits.rolled != 2 {
		t.Fatalf("rolled = %d, want 2", limits.rolled)
	}
}

func TestRolloverJobAggregatesHardFailures(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "sweep-test"})
	limits := &fakeLimitRoller{
		expired: []models.SpendingLimit{expiredLimit()},
		rollFn: func(models.SpendingLimit) error {
			return errors.New("database gone")
		},
	}
	job, err := NewRolloverJob(RolloverJobParams{Logger: logg, Limits: limits})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected aggregated failure")
	}
}

type fakeEscalator struct {
	due       []models.ApprovalRequest
	escalate  func(id uuid.UUID) error
	escalated int
}

func (f *fakeEscalator) ListEscalationCandidates(ctx context.Context, batch int) ([]models.ApprovalRequest, error) {
	return f.due, nil
}

func (f *fakeEscalator) EscalateDue(ctx context.Context, requestID uuid.UUID) (*approvals.ActionResult, error) {
	if f.escalate != nil {
		if err := f.escalate(requestID); err != nil {
			return nil, err
		}
	}
	f.escalated++
	return &approvals.ActionResult{}, nil
}

func TestEscalationJobToleratesRacesAndBadConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "sweep-test"})
	raced := models.ApprovalRequest{ID: uuid.New()}
	misconfigured := models.ApprovalRequest{ID: uuid.New()}
	healthy := models.ApprovalRequest{ID: uuid.New()}
	escalator := &fakeEscalator{
		due: []models.ApprovalRequest{raced, misconfigured, healthy},
		escalate: func(id uuid.UUID) error {
			switch id {
			case raced.ID:
				return pkgerrors.New(pkgerrors.CodeStateConflict, "request is already rejected")
			case misconfigured.ID:
				return pkgerrors.New(pkgerrors.CodeInvalidConfig, "no escalation target configured")
			}
			return nil
		},
	}
	job, err := NewEscalationJob(EscalationJobParams{Logger: logg, Approvals: escalator})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if escalator.escalated != 1 {
		t.Fatalf("escalated = %d, want 1", escalator.escalated)
	}
}
