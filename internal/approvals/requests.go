package approvals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/internal/notifications"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/outbox"
)

// CreateRequestInput opens an approval request for a held purchase.
// WorkflowID is optional; when absent the workflow is resolved from the
// company's active configuration, falling back to a single company-admin
// level when nothing matches.
type CreateRequestInput struct {
	CompanyID   uuid.UUID                `json:"companyId"`
	RequesterID uuid.UUID                `json:"requesterId"`
	EntityType  enums.WorkflowEntityType `json:"entityType"`
	EntityID    uuid.UUID                `json:"entityId"`
	Amount      decimal.Decimal          `json:"amount"`
	Currency    enums.Currency           `json:"currency"`
	CategoryID  string                   `json:"categoryId"`
	Reason      string                   `json:"reason"`
	WorkflowID  *uuid.UUID               `json:"workflowId,omitempty"`
}

func (s *service) CreateRequest(ctx context.Context, input CreateRequestInput) (*models.ApprovalRequest, error) {
	if err := validateCreateRequestInput(input); err != nil {
		return nil, err
	}
	requester, err := s.loadEmployee(ctx, input.RequesterID)
	if err != nil {
		return nil, err
	}
	if requester.CompanyID != input.CompanyID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "requester belongs to another company")
	}

	existing, err := s.repo.FindOpenRequestForEntity(ctx, input.EntityType, input.EntityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open requests")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("an open approval request already exists for %s %s", input.EntityType, input.EntityID))
	}

	workflow, err := s.requestWorkflow(ctx, input)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	levels, err := s.freezeLevels(ctx, input, workflow, now)
	if err != nil {
		return nil, err
	}

	request := &models.ApprovalRequest{
		CompanyID:   input.CompanyID,
		EntityType:  input.EntityType,
		EntityID:    input.EntityID,
		RequesterID: input.RequesterID,
		Amount:      input.Amount,
		Currency:    input.Currency,
		CategoryID:  input.CategoryID,
		Reason:      strings.TrimSpace(input.Reason),
		Status:      enums.ApprovalStatusPending,
		Levels:      levels,
	}
	if workflow != nil {
		request.WorkflowID = &workflow.ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateRequest(ctx, request); err != nil {
			return err
		}
		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventApprovalRequested,
				AggregateType: enums.OutboxAggregateApprovalRequest,
				AggregateID:   request.ID,
				Actor:         &outbox.ActorRef{EmployeeID: requester.ID, CompanyID: requester.CompanyID, Role: requester.Role},
				Data: map[string]any{
					"entityType": request.EntityType,
					"entityId":   request.EntityID,
					"amount":     request.Amount,
					"currency":   request.Currency,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		s.notifyApprovers(ctx, tx, request, levels[0].ApproverIDs, enums.NotificationTypeApprovalNeeded,
			"Approval needed",
			fmt.Sprintf("%s requested approval for %s %s", requester.FullName, request.Amount.StringFixed(2), request.Currency))
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create approval request")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"request_id": request.ID.String(),
		"entity_id":  request.EntityID.String(),
		"levels":     len(levels),
	})
	s.logg.Info(logCtx, "approval request opened")
	return request, nil
}

// requestWorkflow picks the configuration the request runs under.
func (s *service) requestWorkflow(ctx context.Context, input CreateRequestInput) (*models.ApprovalWorkflow, error) {
	if input.WorkflowID != nil {
		workflow, err := s.GetWorkflow(ctx, *input.WorkflowID)
		if err != nil {
			return nil, err
		}
		if workflow.CompanyID != input.CompanyID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "workflow belongs to another company")
		}
		if !workflow.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "workflow is no longer active")
		}
		return workflow, nil
	}
	return s.ResolveWorkflow(ctx, input.CompanyID, input.EntityType, input.Amount, input.CategoryID)
}

// freezeLevels copies the workflow's level chain into the request. Only the
// first level's approver set is resolved here; later levels resolve when they
// activate so role membership and delegations are read at the right moment.
// A nil workflow yields the company-admin fallback chain.
func (s *service) freezeLevels(ctx context.Context, input CreateRequestInput, workflow *models.ApprovalWorkflow, now time.Time) (models.RequestLevels, error) {
	var levels models.RequestLevels
	if workflow == nil {
		adminRole := enums.EmployeeRoleAdmin
		levels = models.RequestLevels{{
			Name:              "Company admin review",
			ApproverRole:      &adminRole,
			RequiredApprovals: 1,
		}}
	} else {
		levels = make(models.RequestLevels, 0, len(workflow.Levels))
		for _, configured := range workflow.Levels {
			required := configured.RequiredApprovals
			if required <= 0 && !configured.RequireAll {
				required = 1
			}
			levels = append(levels, models.RequestLevel{
				Name:              configured.Name,
				ApproverRole:      configured.ApproverRole,
				ApproverIDs:       []uuid.UUID(configured.ApproverIDs),
				RequiredApprovals: required,
				RequireAll:        configured.RequireAll,
				EscalationHours:   configured.EscalationHours,
			})
		}
	}

	resolved, err := s.resolveApprovers(ctx, input.CompanyID, levels[0].ApproverRole, levels[0].ApproverIDs, input.EntityType, input.Amount, now)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "no approvers available for the first level")
	}
	levels[0].ApproverIDs = resolved
	activated := now
	levels[0].ActivatedAt = &activated
	return levels, nil
}

func (s *service) notifyApprovers(ctx context.Context, tx *gorm.DB, request *models.ApprovalRequest, approverIDs []uuid.UUID, kind enums.NotificationType, title, body string) {
	if s.notifier == nil {
		return
	}
	for _, approverID := range approverIDs {
		s.notifier.Notify(ctx, tx, notifications.NotifyInput{
			CompanyID:  request.CompanyID,
			EmployeeID: approverID,
			Type:       kind,
			Title:      title,
			Body:       body,
			Data:       map[string]any{"requestId": request.ID},
		})
	}
}

func validateCreateRequestInput(input CreateRequestInput) error {
	if input.CompanyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	if input.RequesterID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "requester id is required")
	}
	if input.EntityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if !input.EntityType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}
	return nil
}
