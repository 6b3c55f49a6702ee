package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/internal/ledger"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

type ledgerStore interface {
	SumForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	RecordAdjustment(ctx context.Context, input ledger.RecordTransactionInput) (*models.SpendingTransaction, error)
}

// Service exposes spending limit lookup, rollover, and admin operations.
type Service interface {
	GetApplicableLimits(ctx context.Context, employee *models.Employee) ([]models.SpendingLimit, error)
	RecomputeSpending(ctx context.Context, limit *models.SpendingLimit) (decimal.Decimal, error)
	Charge(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit, amount decimal.Decimal) (*models.SpendingLimit, error)
	RollOverIfExpired(ctx context.Context, limit models.SpendingLimit, now time.Time) (*models.SpendingLimit, error)
	ResetLimit(ctx context.Context, limitID, actorID uuid.UUID, reason string) (*models.SpendingLimit, error)
	GetLimit(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error)
	ListLimits(ctx context.Context, companyID uuid.UUID) ([]models.SpendingLimit, error)
	ListExpired(ctx context.Context, before time.Time, batch int) ([]models.SpendingLimit, error)
	ListOverWarning(ctx context.Context, batch int) ([]models.SpendingLimit, error)
	CreateLimit(ctx context.Context, input CreateLimitInput) (*models.SpendingLimit, error)
	UpdateLimit(ctx context.Context, id uuid.UUID, input UpdateLimitInput) (*models.SpendingLimit, error)
	DeleteLimit(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo   Repository
	ledger ledgerStore
	logg   *logger.Logger
}

// CreateLimitInput captures the admin-configured fields of a new limit.
type CreateLimitInput struct {
	CompanyID           uuid.UUID
	Name                string
	EntityType          enums.SpendingEntityType
	EntityID            uuid.UUID
	Period              enums.LimitPeriod
	LimitAmount         decimal.Decimal
	Currency            enums.Currency
	WarningThresholdPct int
}

// UpdateLimitInput captures the mutable fields of an existing limit.
type UpdateLimitInput struct {
	Name                *string
	LimitAmount         *decimal.Decimal
	WarningThresholdPct *int
	IsActive            *bool
}

// NewService wires a limits service.
func NewService(repo Repository, ledgerStore ledgerStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("limits repository required")
	}
	if ledgerStore == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, ledger: ledgerStore, logg: logg}, nil
}

// GetApplicableLimits returns the active limits scoped to the employee
// directly, to the employee's department, and company-wide. Expired recurring
// periods are rolled over before the limits are returned. Limits with
// inconsistent configuration are skipped and logged, never fatal.
func (s *service) GetApplicableLimits(ctx context.Context, employee *models.Employee) ([]models.SpendingLimit, error) {
	if employee == nil || employee.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
	}

	scopes := []Scope{
		{EntityType: enums.SpendingEntityTypeEmployee, EntityID: employee.ID},
		{EntityType: enums.SpendingEntityTypeCompany, EntityID: employee.CompanyID},
	}
	if employee.DepartmentID != nil {
		scopes = append(scopes, Scope{EntityType: enums.SpendingEntityTypeDepartment, EntityID: *employee.DepartmentID})
	}

	rows, err := s.repo.ListForScopes(ctx, employee.CompanyID, scopes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list limits")
	}

	now := time.Now().UTC()
	applicable := make([]models.SpendingLimit, 0, len(rows))
	for _, limit := range rows {
		if limit.LimitAmount.IsNegative() || limit.WarningThresholdPct <= 0 || limit.WarningThresholdPct > 100 {
			logCtx := s.logg.WithField(ctx, "limit_id", limit.ID.String())
			s.logg.Warn(logCtx, "skipping misconfigured spending limit")
			continue
		}
		if limit.Period.Recurring() && !limit.PeriodEnd.After(now) {
			rolled, err := s.RollOverIfExpired(ctx, limit, now)
			if err != nil {
				return nil, err
			}
			limit = *rolled
		}
		applicable = append(applicable, limit)
	}
	return applicable, nil
}

// RecomputeSpending sums the ledger over the limit's open period. Per-order
// limits never accumulate, so their recomputed value is always zero.
func (s *service) RecomputeSpending(ctx context.Context, limit *models.SpendingLimit) (decimal.Decimal, error) {
	if limit == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "limit not found")
	}
	if limit.Period == enums.LimitPeriodPerOrder {
		return decimal.Zero, nil
	}
	total, err := s.ledger.SumForEntity(ctx, limit.EntityType, limit.EntityID, limit.PeriodStart, limit.PeriodEnd)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute spending")
	}
	return total, nil
}

// Charge adds amount to the limit's cached counter under a version CAS. A
// lost race returns ConflictError; the caller re-reads and retries once.
func (s *service) Charge(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit, amount decimal.Decimal) (*models.SpendingLimit, error) {
	if limit.Period == enums.LimitPeriodPerOrder {
		return &limit, nil
	}
	updated := limit
	updated.CurrentSpending = limit.CurrentSpending.Add(amount)
	updated.Version = limit.Version + 1

	ok, err := s.repo.WithTx(tx).CompareAndSwap(ctx, limit.ID, limit.Version, map[string]any{
		"current_spending": updated.CurrentSpending,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "charge limit")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "limit version changed during charge")
	}
	return &updated, nil
}

// RollOverIfExpired opens a fresh period with a zero counter. Concurrent
// rollovers are benign: the CAS loser re-reads the winner's row.
func (s *service) RollOverIfExpired(ctx context.Context, limit models.SpendingLimit, now time.Time) (*models.SpendingLimit, error) {
	if !limit.Period.Recurring() || limit.PeriodEnd.After(now) {
		return &limit, nil
	}
	start, end := PeriodBounds(limit.Period, now)
	ok, err := s.repo.CompareAndSwap(ctx, limit.ID, limit.Version, map[string]any{
		"current_spending": decimal.Zero,
		"period_start":     start,
		"period_end":       end,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "roll over limit")
	}
	if !ok {
		fresh, err := s.repo.FindByID(ctx, limit.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload limit")
		}
		if fresh == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "limit not found")
		}
		return fresh, nil
	}
	limit.CurrentSpending = decimal.Zero
	limit.PeriodStart = start
	limit.PeriodEnd = end
	limit.Version++
	logCtx := s.logg.WithField(ctx, "limit_id", limit.ID.String())
	s.logg.Info(logCtx, "spending limit period rolled over")
	return &limit, nil
}

// ResetLimit zeroes a limit's counter mid-period, documenting the delta as an
// adjustment entry. A second reset in the same period is a no-op: with a zero
// counter there is no delta left to document.
func (s *service) ResetLimit(ctx context.Context, limitID, actorID uuid.UUID, reason string) (*models.SpendingLimit, error) {
	limit, err := s.repo.FindByID(ctx, limitID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load limit")
	}
	if limit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "limit not found")
	}
	if limit.CurrentSpending.IsZero() {
		return limit, nil
	}

	delta := limit.CurrentSpending.Neg()
	if _, err := s.ledger.RecordAdjustment(ctx, ledger.RecordTransactionInput{
		CompanyID:       limit.CompanyID,
		EntityType:      limit.EntityType,
		EntityID:        limit.EntityID,
		LimitID:         &limit.ID,
		Amount:          delta,
		Currency:        limit.Currency,
		Reference:       reason,
		ActorEmployeeID: actorID,
	}); err != nil {
		return nil, err
	}

	// Period start moves past the adjustment entry so recomputation over the
	// fresh window lands back at zero.
	now := time.Now().UTC()
	_, end := PeriodBounds(limit.Period, now)
	ok, err := s.repo.CompareAndSwap(ctx, limit.ID, limit.Version, map[string]any{
		"current_spending": decimal.Zero,
		"period_start":     now,
		"period_end":       end,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset limit")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "limit version changed during reset")
	}
	limit.CurrentSpending = decimal.Zero
	limit.PeriodStart = now
	limit.PeriodEnd = end
	limit.Version++
	return limit, nil
}

func (s *service) GetLimit(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error) {
	limit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load limit")
	}
	if limit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "limit not found")
	}
	return limit, nil
}

func (s *service) ListLimits(ctx context.Context, companyID uuid.UUID) ([]models.SpendingLimit, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	limits, err := s.repo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list limits")
	}
	return limits, nil
}

func (s *service) ListExpired(ctx context.Context, before time.Time, batch int) ([]models.SpendingLimit, error) {
	return s.repo.ListExpired(ctx, before, batch)
}

func (s *service) ListOverWarning(ctx context.Context, batch int) ([]models.SpendingLimit, error) {
	return s.repo.ListOverWarning(ctx, batch)
}

func (s *service) CreateLimit(ctx context.Context, input CreateLimitInput) (*models.SpendingLimit, error) {
	if input.CompanyID == uuid.Nil || input.EntityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company and entity ids are required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit name is required")
	}
	if !input.EntityType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid entity type %q", input.EntityType))
	}
	if !input.Period.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid period %q", input.Period))
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	if input.LimitAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "limit amount cannot be negative")
	}
	if input.WarningThresholdPct <= 0 || input.WarningThresholdPct > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "warning threshold must be between 1 and 100")
	}

	start, end := PeriodBounds(input.Period, time.Now().UTC())
	limit := &models.SpendingLimit{
		CompanyID:           input.CompanyID,
		Name:                input.Name,
		EntityType:          input.EntityType,
		EntityID:            input.EntityID,
		Period:              input.Period,
		LimitAmount:         input.LimitAmount,
		Currency:            input.Currency,
		WarningThresholdPct: input.WarningThresholdPct,
		CurrentSpending:     decimal.Zero,
		PeriodStart:         start,
		PeriodEnd:           end,
		IsActive:            true,
	}
	if err := s.repo.Create(ctx, limit); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create limit")
	}
	return limit, nil
}

func (s *service) UpdateLimit(ctx context.Context, id uuid.UUID, input UpdateLimitInput) (*models.SpendingLimit, error) {
	limit, err := s.GetLimit(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		if *input.Name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit name cannot be empty")
		}
		limit.Name = *input.Name
	}
	if input.LimitAmount != nil {
		if input.LimitAmount.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "limit amount cannot be negative")
		}
		limit.LimitAmount = *input.LimitAmount
	}
	if input.WarningThresholdPct != nil {
		if *input.WarningThresholdPct <= 0 || *input.WarningThresholdPct > 100 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "warning threshold must be between 1 and 100")
		}
		limit.WarningThresholdPct = *input.WarningThresholdPct
	}
	if input.IsActive != nil {
		limit.IsActive = *input.IsActive
	}
	if err := s.repo.Save(ctx, limit); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update limit")
	}
	return limit, nil
}

// DeleteLimit removes a limit. Limits already referenced by ledger entries
// are only ever soft-deleted.
func (s *service) DeleteLimit(ctx context.Context, id uuid.UUID) error {
	limit, err := s.GetLimit(ctx, id)
	if err != nil {
		return err
	}
	referenced, err := s.repo.HasTransactions(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check limit references")
	}
	if referenced {
		limit.IsActive = false
		if err := s.repo.Save(ctx, limit); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate limit")
		}
		return nil
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete limit")
	}
	return nil
}
