package alerts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/internal/notifications"
	"github.com/bijouxtrade/bijoux-backend/pkg/db"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/outbox"
)

type adminDirectory interface {
	ListEmployeesByRole(ctx context.Context, companyID uuid.UUID, role enums.EmployeeRole) ([]models.Employee, error)
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput)
}

// Service raises warning and exceeded alerts on limits, at most one per
// limit, type, and open period.
type Service interface {
	EvaluateLimit(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit) error
	GetAlerts(ctx context.Context, companyID uuid.UUID) ([]models.SpendingAlert, error)
	DismissAlert(ctx context.Context, companyID, alertID uuid.UUID) error
}

type service struct {
	repo      Repository
	directory adminDirectory
	notifier  notifier
	outbox    *outbox.Service
	logg      *logger.Logger
}

// NewService wires an alerts service.
func NewService(repo Repository, directory adminDirectory, notifier notifier, outboxSvc *outbox.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("alerts repository required")
	}
	if directory == nil {
		return nil, fmt.Errorf("directory reader required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		outbox:    outboxSvc,
		logg:      logg,
	}, nil
}

// EvaluateLimit checks the limit's counter against its thresholds and raises
// whichever alerts are due and not yet recorded for the open period.
func (s *service) EvaluateLimit(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit) error {
	if limit.LimitAmount.Sign() <= 0 {
		return nil
	}
	if limit.CurrentSpending.GreaterThanOrEqual(limit.LimitAmount) {
		message := fmt.Sprintf("%q spent %s of %s", limit.Name, limit.CurrentSpending, limit.LimitAmount)
		if err := s.raise(ctx, tx, limit, enums.AlertTypeLimitExceeded, message); err != nil {
			return err
		}
		return nil
	}
	if limit.CurrentSpending.GreaterThanOrEqual(limit.WarningAmount()) {
		message := fmt.Sprintf("%q reached %d%% warning threshold at %s of %s",
			limit.Name, limit.WarningThresholdPct, limit.CurrentSpending, limit.LimitAmount)
		return s.raise(ctx, tx, limit, enums.AlertTypeWarningThreshold, message)
	}
	return nil
}

func (s *service) raise(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit, alertType enums.AlertType, message string) error {
	repo := s.repo.WithTx(tx)
	exists, err := repo.Exists(ctx, limit.ID, alertType, limit.PeriodStart)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing alert")
	}
	if exists {
		return nil
	}

	alert := &models.SpendingAlert{
		CompanyID:   limit.CompanyID,
		LimitID:     limit.ID,
		EntityType:  limit.EntityType,
		EntityID:    limit.EntityID,
		Type:        alertType,
		Message:     message,
		PeriodStart: limit.PeriodStart,
	}
	if err := repo.Create(ctx, alert); err != nil {
		// Two sweeps racing on the same period: the unique index keeps one row.
		if db.IsUniqueViolation(err, "") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create alert")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"limit_id":   limit.ID.String(),
		"alert_type": alertType,
	})
	s.logg.Info(logCtx, "spending alert raised")

	if s.outbox != nil && tx != nil {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventLimitThreshold,
			AggregateType: enums.OutboxAggregateSpendingLimit,
			AggregateID:   limit.ID,
			Data:          alert,
		}); err != nil {
			return err
		}
	}

	if s.notifier != nil {
		notifyType := enums.NotificationTypeLimitWarning
		if alertType == enums.AlertTypeLimitExceeded {
			notifyType = enums.NotificationTypeLimitExceeded
		}
		admins, err := s.directory.ListEmployeesByRole(ctx, limit.CompanyID, enums.EmployeeRoleAdmin)
		if err != nil {
			s.logg.Error(ctx, "resolve alert recipients", err)
			return nil
		}
		for _, admin := range admins {
			s.notifier.Notify(ctx, tx, notifications.NotifyInput{
				CompanyID:  limit.CompanyID,
				EmployeeID: admin.ID,
				Type:       notifyType,
				Title:      "Spending limit alert",
				Body:       message,
				Data:       alert,
			})
		}
	}
	return nil
}

func (s *service) GetAlerts(ctx context.Context, companyID uuid.UUID) ([]models.SpendingAlert, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	alerts, err := s.repo.ListOpenByCompany(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list alerts")
	}
	return alerts, nil
}

func (s *service) DismissAlert(ctx context.Context, companyID, alertID uuid.UUID) error {
	alert, err := s.repo.FindByID(ctx, alertID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load alert")
	}
	if alert == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
	}
	if alert.CompanyID != companyID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "alert belongs to another company")
	}
	if err := s.repo.Dismiss(ctx, alertID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dismiss alert")
	}
	return nil
}
