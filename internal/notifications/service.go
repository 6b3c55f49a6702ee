package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/pagination"
)

// NotifyInput is one fire-and-forget message to an employee.
type NotifyInput struct {
	CompanyID  uuid.UUID
	EmployeeID uuid.UUID
	Type       enums.NotificationType
	Title      string
	Body       string
	Data       any
}

// Service writes and reads per-employee notifications. Delivery failures are
// logged, never fatal: nothing in the engine may fail because a notification
// could not be written.
type Service interface {
	Notify(ctx context.Context, tx *gorm.DB, input NotifyInput)
	List(ctx context.Context, employeeID uuid.UUID, params pagination.Params) ([]models.Notification, string, error)
	MarkRead(ctx context.Context, employeeID, notificationID uuid.UUID) error
	CountUnread(ctx context.Context, employeeID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires a notifications service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Notify(ctx context.Context, tx *gorm.DB, input NotifyInput) {
	if input.EmployeeID == uuid.Nil || !input.Type.IsValid() {
		s.logg.Warn(ctx, "dropping notification with missing recipient or type")
		return
	}
	var data json.RawMessage
	if input.Data != nil {
		encoded, err := json.Marshal(input.Data)
		if err != nil {
			s.logg.Error(ctx, "encode notification data", err)
		} else {
			data = encoded
		}
	}
	notification := &models.Notification{
		CompanyID:  input.CompanyID,
		EmployeeID: input.EmployeeID,
		Type:       input.Type,
		Title:      input.Title,
		Body:       input.Body,
		Data:       data,
	}
	if err := s.repo.WithTx(tx).Create(ctx, notification); err != nil {
		logCtx := s.logg.WithField(ctx, "employee_id", input.EmployeeID.String())
		s.logg.Error(logCtx, "write notification", err)
	}
}

func (s *service) List(ctx context.Context, employeeID uuid.UUID, params pagination.Params) ([]models.Notification, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	notifications, err := s.repo.ListByEmployee(ctx, employeeID, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	next := ""
	if len(notifications) > limit {
		notifications = notifications[:limit]
		tail := notifications[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: tail.CreatedAt, ID: tail.ID})
	}
	return notifications, next, nil
}

func (s *service) MarkRead(ctx context.Context, employeeID, notificationID uuid.UUID) error {
	notification, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}
	if notification == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if notification.EmployeeID != employeeID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "notification belongs to another employee")
	}
	if err := s.repo.MarkRead(ctx, notificationID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	return nil
}

func (s *service) CountUnread(ctx context.Context, employeeID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, employeeID)
}
