package approvals

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	dbtypes "github.com/bijouxtrade/bijoux-backend/pkg/db/types"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
)

// WorkflowInput carries admin-provided workflow configuration.
type WorkflowInput struct {
	CompanyID           uuid.UUID                `json:"companyId"`
	Name                string                   `json:"name"`
	EntityType          enums.WorkflowEntityType `json:"entityType"`
	Triggers            []models.WorkflowTrigger `json:"triggers"`
	Levels              []models.WorkflowLevel   `json:"levels"`
	FallbackApproverIDs []uuid.UUID              `json:"fallbackApproverIds"`
}

func (s *service) GetWorkflow(ctx context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "workflow id is required")
	}
	workflow, err := s.repo.FindWorkflowByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load workflow")
	}
	if workflow == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "workflow not found")
	}
	return workflow, nil
}

func (s *service) ListWorkflows(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalWorkflow, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	workflows, err := s.repo.ListWorkflows(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list workflows")
	}
	return workflows, nil
}

func (s *service) CreateWorkflow(ctx context.Context, input WorkflowInput) (*models.ApprovalWorkflow, error) {
	if err := validateWorkflowInput(input); err != nil {
		return nil, err
	}
	workflow := &models.ApprovalWorkflow{
		CompanyID:           input.CompanyID,
		Name:                strings.TrimSpace(input.Name),
		EntityType:          input.EntityType,
		Triggers:            models.WorkflowTriggers(input.Triggers),
		Levels:              models.WorkflowLevels(input.Levels),
		FallbackApproverIDs: dbtypes.UUIDArray(input.FallbackApproverIDs),
		Version:             1,
		IsActive:            true,
	}
	if err := s.repo.CreateWorkflow(ctx, workflow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create workflow")
	}
	return workflow, nil
}

// UpdateWorkflow versions by replacement: the current row is deactivated and
// a successor with Version+1 is inserted, so requests created against the old
// configuration keep their frozen level chain untouched.
func (s *service) UpdateWorkflow(ctx context.Context, id uuid.UUID, input WorkflowInput) (*models.ApprovalWorkflow, error) {
	current, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.CompanyID == uuid.Nil {
		input.CompanyID = current.CompanyID
	}
	if input.CompanyID != current.CompanyID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "workflow belongs to another company")
	}
	if err := validateWorkflowInput(input); err != nil {
		return nil, err
	}

	successor := &models.ApprovalWorkflow{
		CompanyID:           current.CompanyID,
		Name:                strings.TrimSpace(input.Name),
		EntityType:          input.EntityType,
		Triggers:            models.WorkflowTriggers(input.Triggers),
		Levels:              models.WorkflowLevels(input.Levels),
		FallbackApproverIDs: dbtypes.UUIDArray(input.FallbackApproverIDs),
		Version:             current.Version + 1,
		IsActive:            true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current.IsActive = false
		if err := repo.SaveWorkflow(ctx, current); err != nil {
			return err
		}
		return repo.CreateWorkflow(ctx, successor)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace workflow")
	}
	return successor, nil
}

func (s *service) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	workflow, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if !workflow.IsActive {
		return nil
	}
	workflow.IsActive = false
	if err := s.repo.SaveWorkflow(ctx, workflow); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate workflow")
	}
	return nil
}

// ResolveWorkflow picks the first active workflow whose triggers match the
// purchase, in creation order. A workflow matches when any trigger matches.
// nil means nothing configured matched.
func (s *service) ResolveWorkflow(ctx context.Context, companyID uuid.UUID, entityType enums.WorkflowEntityType, amount decimal.Decimal, categoryID string) (*models.ApprovalWorkflow, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	workflows, err := s.repo.ListActiveWorkflows(ctx, companyID, entityType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active workflows")
	}
	for i := range workflows {
		if workflowMatches(workflows[i], amount, categoryID) {
			return &workflows[i], nil
		}
	}
	return nil, nil
}

func workflowMatches(workflow models.ApprovalWorkflow, amount decimal.Decimal, categoryID string) bool {
	for _, trigger := range workflow.Triggers {
		switch trigger.Type {
		case enums.RuleTriggerAmountExceeds:
			if trigger.Threshold != nil && amount.GreaterThan(*trigger.Threshold) {
				return true
			}
		case enums.RuleTriggerCategoryRestricted:
			for _, category := range trigger.Categories {
				if category == categoryID && categoryID != "" {
					return true
				}
			}
		}
	}
	return false
}

func validateWorkflowInput(input WorkflowInput) error {
	if input.CompanyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "workflow name is required")
	}
	if !input.EntityType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type")
	}
	if len(input.Levels) == 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidConfig, "workflow needs at least one level")
	}
	for _, level := range input.Levels {
		if level.ApproverRole == nil && len(level.ApproverIDs) == 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidConfig, "workflow level needs an approver role or explicit approvers")
		}
		if level.ApproverRole != nil && !level.ApproverRole.IsValid() {
			return pkgerrors.New(pkgerrors.CodeInvalidConfig, "invalid approver role")
		}
		if level.RequiredApprovals < 0 || level.EscalationHours < 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidConfig, "level thresholds must not be negative")
		}
	}
	for _, trigger := range input.Triggers {
		switch trigger.Type {
		case enums.RuleTriggerAmountExceeds:
			if trigger.Threshold == nil || trigger.Threshold.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeInvalidConfig, "amount trigger needs a non-negative threshold")
			}
		case enums.RuleTriggerCategoryRestricted:
			if len(trigger.Categories) == 0 {
				return pkgerrors.New(pkgerrors.CodeInvalidConfig, "category trigger needs at least one category")
			}
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidConfig, "unsupported workflow trigger type")
		}
	}
	return nil
}

// resolveApprovers expands a level's approver set at activation time: the
// explicit id list, plus every active employee holding the level's role, with
// live delegations applied (delegator replaced by delegatee). The result is
// deduplicated and order-stable.
func (s *service) resolveApprovers(
	ctx context.Context,
	companyID uuid.UUID,
	role *enums.EmployeeRole,
	explicit []uuid.UUID,
	entityType enums.WorkflowEntityType,
	amount decimal.Decimal,
	at time.Time,
) ([]uuid.UUID, error) {
	base := make([]uuid.UUID, 0, len(explicit))
	base = append(base, explicit...)
	if role != nil {
		employees, err := s.directory.ListEmployeesByRole(ctx, companyID, *role)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve approver role")
		}
		for _, employee := range employees {
			base = append(base, employee.ID)
		}
	}

	delegations, err := s.repo.ListActiveDelegationsForDelegators(ctx, base, at)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delegations")
	}
	redirects := make(map[uuid.UUID]uuid.UUID, len(delegations))
	for _, delegation := range delegations {
		if delegation.CoversAt(at) && delegation.CoversEntityType(string(entityType)) && delegation.CoversAmount(amount) {
			redirects[delegation.DelegatorID] = delegation.DelegateeID
		}
	}

	seen := make(map[uuid.UUID]struct{}, len(base))
	resolved := make([]uuid.UUID, 0, len(base))
	for _, id := range base {
		if target, ok := redirects[id]; ok {
			id = target
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		resolved = append(resolved, id)
	}
	return resolved, nil
}
