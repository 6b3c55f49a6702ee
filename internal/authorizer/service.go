package authorizer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/internal/ledger"
	"github.com/bijouxtrade/bijoux-backend/internal/rules"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/outbox"
)

type directoryReader interface {
	FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	FindEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error)
}

type limitStore interface {
	GetApplicableLimits(ctx context.Context, employee *models.Employee) ([]models.SpendingLimit, error)
	RecomputeSpending(ctx context.Context, limit *models.SpendingLimit) (decimal.Decimal, error)
	Charge(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit, amount decimal.Decimal) (*models.SpendingLimit, error)
	GetLimit(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error)
}

type ruleEngine interface {
	Evaluate(ctx context.Context, companyID uuid.UUID, purchase rules.Purchase) ([]rules.TriggeredRule, error)
}

type workflowResolver interface {
	ResolveWorkflow(ctx context.Context, companyID uuid.UUID, entityType enums.WorkflowEntityType, amount decimal.Decimal, categoryID string) (*models.ApprovalWorkflow, error)
}

type ledgerWriter interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordTransactionInput) (*models.SpendingTransaction, error)
}

type alertSink interface {
	EvaluateLimit(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit) error
}

// Service answers "is this purchase allowed right now" and commits allowed
// purchases to the ledger.
type Service interface {
	CheckPurchase(ctx context.Context, employeeID uuid.UUID, amount decimal.Decimal, categoryID string) (*SpendingCheckResult, error)
	CheckEntity(ctx context.Context, employeeID uuid.UUID, entityType enums.WorkflowEntityType, entityID uuid.UUID) (*SpendingCheckResult, error)
	GetRemainingBudget(ctx context.Context, employeeID uuid.UUID) ([]BudgetRemaining, error)
	Commit(ctx context.Context, input CommitPurchaseInput) (*models.SpendingTransaction, error)
}

// ServiceParams wire the authorizer's collaborators.
type ServiceParams struct {
	DB        *gorm.DB
	Directory directoryReader
	Limits    limitStore
	Rules     ruleEngine
	Workflows workflowResolver
	Ledger    ledgerWriter
	Alerts    alertSink
	Outbox    *outbox.Service
	Provider  PurchaseContextProvider
	Logger    *logger.Logger
}

type service struct {
	db        *gorm.DB
	directory directoryReader
	limits    limitStore
	rules     ruleEngine
	workflows workflowResolver
	ledger    ledgerWriter
	alerts    alertSink
	outbox    *outbox.Service
	provider  PurchaseContextProvider
	logg      *logger.Logger
}

// CommitPurchaseInput records an authorized purchase against the ledger.
// Approved marks a purchase that cleared an approval workflow; it bypasses
// the hard budget recheck a plain commit performs.
type CommitPurchaseInput struct {
	EmployeeID uuid.UUID
	Amount     decimal.Decimal
	Type       enums.TransactionType
	CategoryID string
	Reference  string
	Approved   bool
}

// NewService builds a purchase authorizer.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if params.Directory == nil || params.Limits == nil || params.Rules == nil {
		return nil, fmt.Errorf("directory, limits, and rules are required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger writer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:        params.DB,
		directory: params.Directory,
		limits:    params.Limits,
		rules:     params.Rules,
		workflows: params.Workflows,
		ledger:    params.Ledger,
		alerts:    params.Alerts,
		outbox:    params.Outbox,
		provider:  params.Provider,
		logg:      params.Logger,
	}, nil
}

func (s *service) employee(ctx context.Context, employeeID uuid.UUID) (*models.Employee, error) {
	if employeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	employee, err := s.directory.FindEmployee(ctx, employeeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load employee")
	}
	if employee == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
	}
	return employee, nil
}

// CheckPurchase is a dry run: it combines limit headroom and rule verdicts
// into one decision and persists nothing.
func (s *service) CheckPurchase(ctx context.Context, employeeID uuid.UUID, amount decimal.Decimal, categoryID string) (*SpendingCheckResult, error) {
	employee, err := s.employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return s.decide(ctx, employee, amount, categoryID, enums.WorkflowEntityTypeOrder)
}

// CheckEntity resolves the purchase context from the commerce backend and
// runs the same decision as CheckPurchase.
func (s *service) CheckEntity(ctx context.Context, employeeID uuid.UUID, entityType enums.WorkflowEntityType, entityID uuid.UUID) (*SpendingCheckResult, error) {
	if s.provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no purchase context provider configured")
	}
	employee, err := s.employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	purchase, err := s.provider.ResolvePurchase(ctx, entityType, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve purchase context")
	}
	if purchase == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase entity not found")
	}
	categoryID := ""
	if len(purchase.CategoryIDs) > 0 {
		categoryID = purchase.CategoryIDs[0]
	}
	return s.decide(ctx, employee, purchase.Total, categoryID, entityType)
}

func (s *service) decide(ctx context.Context, employee *models.Employee, amount decimal.Decimal, categoryID string, entityType enums.WorkflowEntityType) (*SpendingCheckResult, error) {
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be negative")
	}

	applicable, err := s.limits.GetApplicableLimits(ctx, employee)
	if err != nil {
		return nil, err
	}

	affected := make([]AffectedLimit, 0, len(applicable))
	anyExceed := false
	for _, limit := range applicable {
		spent, err := s.limits.RecomputeSpending(ctx, &limit)
		if err != nil {
			return nil, err
		}
		// The recomputed ledger sum wins over the cached counter.
		limit.CurrentSpending = spent
		remainingAfter := limit.LimitAmount.Sub(spent).Sub(amount)
		entry := AffectedLimit{
			Limit:             limit,
			RemainingAfter:    remainingAfter,
			WouldExceed:       remainingAfter.IsNegative(),
			WouldCrossWarning: spent.Add(amount).GreaterThanOrEqual(limit.WarningAmount()),
		}
		if entry.WouldExceed {
			anyExceed = true
		}
		affected = append(affected, entry)
	}

	triggered, err := s.rules.Evaluate(ctx, employee.CompanyID, rules.Purchase{
		Amount:     amount,
		CategoryID: categoryID,
		EmployeeID: employee.ID,
	})
	if err != nil {
		return nil, err
	}
	netAction, _ := rules.NetAction(triggered)

	result := &SpendingCheckResult{
		AffectedLimits: affected,
		TriggeredRules: triggered,
	}
	approvalCapable := netAction == enums.RuleActionRequireApproval

	switch {
	case netAction == enums.RuleActionBlock:
		result.Allowed = false
		result.Reason = blockReason(triggered)
	case anyExceed && !approvalCapable:
		result.Allowed = false
		result.Reason = exceedReason(affected)
	default:
		result.Allowed = true
		result.RequiresApproval = anyExceed || approvalCapable
		if anyExceed {
			result.Reason = exceedReason(affected)
		} else if approvalCapable {
			result.Reason = blockReason(triggered)
		}
	}

	if result.RequiresApproval && s.workflows != nil {
		workflow, err := s.workflows.ResolveWorkflow(ctx, employee.CompanyID, entityType, amount, categoryID)
		if err != nil {
			return nil, err
		}
		if workflow != nil {
			result.ApprovalWorkflowID = &workflow.ID
		}
	}
	return result, nil
}

func blockReason(triggered []rules.TriggeredRule) string {
	for _, match := range triggered {
		if match.Reason != "" {
			return fmt.Sprintf("%s: %s", match.Rule.Name, match.Reason)
		}
	}
	return "a spending rule applies to this purchase"
}

func exceedReason(affected []AffectedLimit) string {
	for _, entry := range affected {
		if entry.WouldExceed {
			return fmt.Sprintf("purchase exceeds %q by %s", entry.Limit.Name, entry.RemainingAfter.Neg())
		}
	}
	return "purchase exceeds a spending limit"
}

// GetRemainingBudget reports live, ledger-recomputed headroom per limit.
func (s *service) GetRemainingBudget(ctx context.Context, employeeID uuid.UUID) ([]BudgetRemaining, error) {
	employee, err := s.employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	applicable, err := s.limits.GetApplicableLimits(ctx, employee)
	if err != nil {
		return nil, err
	}
	remaining := make([]BudgetRemaining, 0, len(applicable))
	for _, limit := range applicable {
		spent, err := s.limits.RecomputeSpending(ctx, &limit)
		if err != nil {
			return nil, err
		}
		limit.CurrentSpending = spent
		remaining = append(remaining, BudgetRemaining{
			Limit:     limit,
			Spent:     spent,
			Remaining: limit.LimitAmount.Sub(spent),
		})
	}
	return remaining, nil
}

// Commit appends the purchase to the ledger and bumps each applicable cached
// counter under a version CAS, retried once against a fresh read. A plain
// commit rechecks hard headroom on the fresh read so two racing commits
// cannot both clear the same threshold.
func (s *service) Commit(ctx context.Context, input CommitPurchaseInput) (*models.SpendingTransaction, error) {
	employee, err := s.employee(ctx, input.EmployeeID)
	if err != nil {
		return nil, err
	}
	company, err := s.directory.FindCompany(ctx, employee.CompanyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
	}
	if company == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
	}
	if input.Type == "" {
		input.Type = enums.TransactionTypeOrder
	}

	applicable, err := s.limits.GetApplicableLimits(ctx, employee)
	if err != nil {
		return nil, err
	}

	var recorded *models.SpendingTransaction
	var charged []models.SpendingLimit
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var limitRef *uuid.UUID
		for _, limit := range applicable {
			if limit.Period == enums.LimitPeriodPerOrder {
				continue
			}
			updated, err := s.chargeWithRetry(ctx, tx, limit, input)
			if err != nil {
				return err
			}
			charged = append(charged, *updated)
			if limitRef == nil || limit.EntityType == enums.SpendingEntityTypeEmployee {
				id := updated.ID
				limitRef = &id
			}
		}

		transaction, err := s.ledger.Record(ctx, tx, ledger.RecordTransactionInput{
			CompanyID:       employee.CompanyID,
			EntityType:      enums.SpendingEntityTypeEmployee,
			EntityID:        employee.ID,
			LimitID:         limitRef,
			Type:            input.Type,
			Amount:          input.Amount,
			Currency:        company.Currency,
			CategoryID:      input.CategoryID,
			Reference:       input.Reference,
			ActorEmployeeID: employee.ID,
		})
		if err != nil {
			return err
		}
		recorded = transaction

		if s.outbox != nil {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.OutboxEventTransactionRecorded,
				AggregateType: enums.OutboxAggregateSpendingTransaction,
				AggregateID:   transaction.ID,
				Actor:         &outbox.ActorRef{EmployeeID: employee.ID, CompanyID: employee.CompanyID, Role: employee.Role},
				Data:          transaction,
			}); err != nil {
				return err
			}
		}

		if s.alerts != nil {
			for _, limit := range charged {
				if err := s.alerts.EvaluateLimit(ctx, tx, limit); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": recorded.ID.String(),
		"employee_id":    employee.ID.String(),
		"amount":         input.Amount.String(),
	})
	s.logg.Info(logCtx, "purchase committed")
	return recorded, nil
}

func (s *service) chargeWithRetry(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit, input CommitPurchaseInput) (*models.SpendingLimit, error) {
	if err := s.recheckHeadroom(limit, input); err != nil {
		return nil, err
	}
	updated, err := s.limits.Charge(ctx, tx, limit, input.Amount)
	if err == nil {
		return updated, nil
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		return nil, err
	}

	fresh, err := s.limits.GetLimit(ctx, limit.ID)
	if err != nil {
		return nil, err
	}
	if err := s.recheckHeadroom(*fresh, input); err != nil {
		return nil, err
	}
	return s.limits.Charge(ctx, tx, *fresh, input.Amount)
}

func (s *service) recheckHeadroom(limit models.SpendingLimit, input CommitPurchaseInput) error {
	if input.Approved || input.Amount.Sign() <= 0 {
		return nil
	}
	if limit.CurrentSpending.Add(input.Amount).GreaterThan(limit.LimitAmount) {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("limit %q exhausted by a concurrent commit", limit.Name))
	}
	return nil
}
