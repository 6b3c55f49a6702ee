package approvals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
)

// DelegationInput configures a temporary transfer of approval authority.
type DelegationInput struct {
	CompanyID   uuid.UUID        `json:"companyId"`
	DelegatorID uuid.UUID        `json:"delegatorId"`
	DelegateeID uuid.UUID        `json:"delegateeId"`
	StartDate   time.Time        `json:"startDate"`
	EndDate     time.Time        `json:"endDate"`
	EntityTypes []string         `json:"entityTypes,omitempty"`
	MaxAmount   *decimal.Decimal `json:"maxAmount,omitempty"`
}

func (s *service) ListDelegations(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalDelegation, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	delegations, err := s.repo.ListDelegationsByCompany(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delegations")
	}
	return delegations, nil
}

func (s *service) CreateDelegation(ctx context.Context, input DelegationInput) (*models.ApprovalDelegation, error) {
	if err := s.validateDelegationInput(ctx, input); err != nil {
		return nil, err
	}
	delegation := &models.ApprovalDelegation{
		CompanyID:   input.CompanyID,
		DelegatorID: input.DelegatorID,
		DelegateeID: input.DelegateeID,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		EntityTypes: pq.StringArray(input.EntityTypes),
		MaxAmount:   input.MaxAmount,
		IsActive:    true,
	}
	if err := s.repo.CreateDelegation(ctx, delegation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delegation")
	}
	return delegation, nil
}

func (s *service) UpdateDelegation(ctx context.Context, id uuid.UUID, input DelegationInput) (*models.ApprovalDelegation, error) {
	delegation, err := s.findDelegation(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.CompanyID == uuid.Nil {
		input.CompanyID = delegation.CompanyID
	}
	if input.CompanyID != delegation.CompanyID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delegation belongs to another company")
	}
	if err := s.validateDelegationInput(ctx, input); err != nil {
		return nil, err
	}

	delegation.DelegatorID = input.DelegatorID
	delegation.DelegateeID = input.DelegateeID
	delegation.StartDate = input.StartDate
	delegation.EndDate = input.EndDate
	delegation.EntityTypes = pq.StringArray(input.EntityTypes)
	delegation.MaxAmount = input.MaxAmount
	if err := s.repo.SaveDelegation(ctx, delegation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delegation")
	}
	return delegation, nil
}

func (s *service) DeleteDelegation(ctx context.Context, id uuid.UUID) error {
	delegation, err := s.findDelegation(ctx, id)
	if err != nil {
		return err
	}
	if !delegation.IsActive {
		return nil
	}
	delegation.IsActive = false
	if err := s.repo.SaveDelegation(ctx, delegation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate delegation")
	}
	return nil
}

func (s *service) findDelegation(ctx context.Context, id uuid.UUID) (*models.ApprovalDelegation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delegation id is required")
	}
	delegation, err := s.repo.FindDelegationByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delegation")
	}
	if delegation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delegation not found")
	}
	return delegation, nil
}

func (s *service) validateDelegationInput(ctx context.Context, input DelegationInput) error {
	if input.CompanyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	if input.DelegatorID == uuid.Nil || input.DelegateeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delegator and delegatee are required")
	}
	if input.DelegatorID == input.DelegateeID {
		return pkgerrors.New(pkgerrors.CodeValidation, "delegator and delegatee must differ")
	}
	if !input.EndDate.After(input.StartDate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
	}
	for _, entityType := range input.EntityTypes {
		if !enums.WorkflowEntityType(entityType).IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type in delegation scope")
		}
	}
	if input.MaxAmount != nil && !input.MaxAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "max amount must be positive")
	}
	for _, employeeID := range []uuid.UUID{input.DelegatorID, input.DelegateeID} {
		employee, err := s.loadEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		if employee.CompanyID != input.CompanyID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "delegation parties must belong to the company")
		}
	}
	return nil
}
