package limits

import (
	"context"
	"testing"
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

type fakeRepository struct {
	findByIDFn       func(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error)
	listForScopesFn  func(ctx context.Context, companyID uuid.UUID, scopes []Scope) ([]models.SpendingLimit, error)
	listByCompanyFn  func(ctx context.Context, companyID uuid.UUID) ([]models.SpendingLimit, error)
	listExpiredFn    func(ctx context.Context, before time.Time, batch int) ([]models.SpendingLimit, error)
	listOverWarnFn   func(ctx context.Context, batch int) ([]models.SpendingLimit, error)
	createFn         func(ctx context.Context, limit *models.SpendingLimit) error
	saveFn           func(ctx context.Context, limit *models.SpendingLimit) error
	casFn            func(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	hasTransactionsFn func(ctx context.Context, id uuid.UUID) (bool, error)
	deleteFn         func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeRepository) ListForScopes(ctx context.Context, companyID uuid.UUID, scopes []Scope) ([]models.SpendingLimit, error) {
	if f.listForScopesFn != nil {
		return f.listForScopesFn(ctx, companyID, scopes)
	}
	return nil, nil
}

func (f *fakeRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.SpendingLimit, error) {
	if f.listByCompanyFn != nil {
		return f.listByCompanyFn(ctx, companyID)
	}
	return nil, nil
}

func (f *fakeRepository) ListExpired(ctx context.Context, before time.Time, batch int) ([]models.SpendingLimit, error) {
	if f.listExpiredFn != nil {
		return f.listExpiredFn(ctx, before, batch)
	}
	return nil, nil
}

func (f *fakeRepository) ListOverWarning(ctx context.Context, batch int) ([]models.SpendingLimit, error) {
	if f.listOverWarnFn != nil {
		return f.listOverWarnFn(ctx, batch)
	}
	return nil, nil
}

func (f *fakeRepository) Create(ctx context.Context, limit *models.SpendingLimit) error {
	if f.createFn != nil {
		return f.createFn(ctx, limit)
	}
	return nil
}

func (f *fakeRepository) Save(ctx context.Context, limit *models.SpendingLimit) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, limit)
	}
	return nil
}

func (f *fakeRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	if f.casFn != nil {
		return f.casFn(ctx, id, version, updates)
	}
	return true, nil
}

func (f *fakeRepository) HasTransactions(ctx context.Context, id uuid.UUID) (bool, error) {
	if f.hasTransactionsFn != nil {
		return f.hasTransactionsFn(ctx, id)
	}
	return false, nil
}

func (f *fakeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

type fakeLedger struct {
	sumFn    func(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	adjustFn func(ctx context.Context, input ledger.RecordTransactionInput) (*models.SpendingTransaction, error)
}

func (f *fakeLedger) SumForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	if f.sumFn != nil {
		return f.sumFn(ctx, entityType, entityID, from, to)
	}
	return decimal.Zero, nil
}

func (f *fakeLedger) RecordAdjustment(ctx context.Context, input ledger.RecordTransactionInput) (*models.SpendingTransaction, error) {
	if f.adjustFn != nil {
		return f.adjustFn(ctx, input)
	}
	return &models.SpendingTransaction{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "limits-test"})
}

func newTestService(t *testing.T, repo Repository, store ledgerStore) Service {
	t.Helper()
	svc, err := NewService(repo, store, testLogger())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func monthlyLimit(entityID uuid.UUID) models.SpendingLimit {
	now := time.Now().UTC()
	start, end := PeriodBounds(enums.LimitPeriodMonthly, now)
	return models.SpendingLimit{
		ID:                  uuid.New(),
		CompanyID:           uuid.New(),
		Name:                "monthly employee cap",
		EntityType:          enums.SpendingEntityTypeEmployee,
		EntityID:            entityID,
		Period:              enums.LimitPeriodMonthly,
		LimitAmount:         decimal.NewFromInt(5000),
		Currency:            enums.CurrencyEUR,
		WarningThresholdPct: 80,
		CurrentSpending:     decimal.NewFromInt(4800),
		PeriodStart:         start,
		PeriodEnd:           end,
		IsActive:            true,
		Version:             3,
	}
}

func TestService_GetApplicableLimitsScopes(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeLedger{})

	deptID := uuid.New()
	employee := &models.Employee{
		ID:           uuid.New(),
		CompanyID:    uuid.New(),
		DepartmentID: &deptID,
		Role:         enums.EmployeeRoleEmployee,
	}

	var gotScopes []Scope
	repo.listForScopesFn = func(ctx context.Context, companyID uuid.UUID, scopes []Scope) ([]models.SpendingLimit, error) {
		gotScopes = scopes
		return nil, nil
	}

	if _, err := svc.GetApplicableLimits(context.Background(), employee); err != nil {
		t.Fatalf("GetApplicableLimits error: %v", err)
	}
	if len(gotScopes) != 3 {
		t.Fatalf("scopes = %d, want employee + company + department", len(gotScopes))
	}
}

func TestService_GetApplicableLimitsSkipsMisconfigured(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeLedger{})

	employee := &models.Employee{ID: uuid.New(), CompanyID: uuid.New()}
	good := monthlyLimit(employee.ID)
	bad := monthlyLimit(employee.ID)
	bad.LimitAmount = decimal.NewFromInt(-100)

	repo.listForScopesFn = func(ctx context.Context, companyID uuid.UUID, scopes []Scope) ([]models.SpendingLimit, error) {
		return []models.SpendingLimit{bad, good}, nil
	}

	limits, err := svc.GetApplicableLimits(context.Background(), employee)
	if err != nil {
		t.Fatalf("GetApplicableLimits error: %v", err)
	}
	if len(limits) != 1 || limits[0].ID != good.ID {
		t.Fatalf("misconfigured limit should be skipped, got %d limits", len(limits))
	}
}

func TestService_GetApplicableLimitsRollsOverExpired(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeLedger{})

	employee := &models.Employee{ID: uuid.New(), CompanyID: uuid.New()}
	expired := monthlyLimit(employee.ID)
	expired.PeriodStart = expired.PeriodStart.AddDate(0, -1, 0)
	expired.PeriodEnd = expired.PeriodEnd.AddDate(0, -1, 0)

	repo.listForScopesFn = func(ctx context.Context, companyID uuid.UUID, scopes []Scope) ([]models.SpendingLimit, error) {
		return []models.SpendingLimit{expired}, nil
	}
	casCalled := false
	repo.casFn = func(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
		casCalled = true
		if version != expired.Version {
			t.Fatalf("cas version = %d, want %d", version, expired.Version)
		}
		return true, nil
	}

	limits, err := svc.GetApplicableLimits(context.Background(), employee)
	if err != nil {
		t.Fatalf("GetApplicableLimits error: %v", err)
	}
	if !casCalled {
		t.Fatal("expired limit should trigger a rollover")
	}
	if !limits[0].CurrentSpending.IsZero() {
		t.Fatalf("rolled-over counter = %s, want 0", limits[0].CurrentSpending)
	}
	if !limits[0].PeriodEnd.After(time.Now().UTC()) {
		t.Fatal("rolled-over period end should be in the future")
	}
}

func TestService_ChargeLosesRace(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeLedger{})

	limit := monthlyLimit(uuid.New())
	repo.casFn = func(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
		return false, nil
	}

	_, err := svc.Charge(context.Background(), nil, limit, decimal.NewFromInt(100))
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestService_ChargeUpdatesCounter(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeLedger{})

	limit := monthlyLimit(uuid.New())
	var gotUpdates map[string]any
	repo.casFn = func(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
		gotUpdates = updates
		return true, nil
	}

	updated, err := svc.Charge(context.Background(), nil, limit, decimal.NewFromInt(150))
	if err != nil {
		t.Fatalf("Charge error: %v", err)
	}
	if !updated.CurrentSpending.Equal(decimal.NewFromInt(4950)) {
		t.Fatalf("counter = %s, want 4950", updated.CurrentSpending)
	}
	if updated.Version != limit.Version+1 {
		t.Fatalf("version = %d, want %d", updated.Version, limit.Version+1)
	}
	if gotUpdates["current_spending"] == nil {
		t.Fatal("cas should write current_spending")
	}
}

func TestService_ChargeSkipsPerOrderLimits(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeLedger{})

	limit := monthlyLimit(uuid.New())
	limit.Period = enums.LimitPeriodPerOrder
	repo.casFn = func(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
		t.Fatal("per-order limits must not accumulate")
		return false, nil
	}
	if _, err := svc.Charge(context.Background(), nil, limit, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Charge error: %v", err)
	}
}

func TestService_ResetLimitIdempotent(t *testing.T) {
	repo := &fakeRepository{}
	ledgerStore := &fakeLedger{}
	svc := newTestService(t, repo, ledgerStore)

	limit := monthlyLimit(uuid.New())
	repo.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error) {
		copied := limit
		return &copied, nil
	}

	adjustments := 0
	ledgerStore.adjustFn = func(ctx context.Context, input ledger.RecordTransactionInput) (*models.SpendingTransaction, error) {
		adjustments++
		if !input.Amount.Equal(decimal.NewFromInt(-4800)) {
			t.Fatalf("reset delta = %s, want -4800", input.Amount)
		}
		if input.Reference != "quarter close" {
			t.Fatalf("reference = %q", input.Reference)
		}
		return &models.SpendingTransaction{}, nil
	}

	reset, err := svc.ResetLimit(context.Background(), limit.ID, uuid.New(), "quarter close")
	if err != nil {
		t.Fatalf("ResetLimit error: %v", err)
	}
	if !reset.CurrentSpending.IsZero() {
		t.Fatalf("counter after reset = %s", reset.CurrentSpending)
	}

	// Second reset in the same period: counter already zero, no new entry.
	limit.CurrentSpending = decimal.Zero
	if _, err := svc.ResetLimit(context.Background(), limit.ID, uuid.New(), "quarter close"); err != nil {
		t.Fatalf("second ResetLimit error: %v", err)
	}
	if adjustments != 1 {
		t.Fatalf("adjustments = %d, want exactly one", adjustments)
	}
}

func TestService_CreateLimitRejectsBadConfig(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeLedger{})

	input := CreateLimitInput{
		CompanyID:           uuid.New(),
		Name:                "bad",
		EntityType:          enums.SpendingEntityTypeEmployee,
		EntityID:            uuid.New(),
		Period:              enums.LimitPeriodMonthly,
		LimitAmount:         decimal.NewFromInt(-1),
		Currency:            enums.CurrencyEUR,
		WarningThresholdPct: 80,
	}
	if _, err := svc.CreateLimit(context.Background(), input); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidConfig) {
		t.Fatalf("expected invalid configuration error, got %v", err)
	}

	input.LimitAmount = decimal.NewFromInt(1000)
	input.WarningThresholdPct = 120
	if _, err := svc.CreateLimit(context.Background(), input); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidConfig) {
		t.Fatalf("expected invalid configuration error, got %v", err)
	}
}

func TestService_DeleteLimitSoftDeletesWhenReferenced(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo, &fakeLedger{})

	limit := monthlyLimit(uuid.New())
	repo.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error) {
		copied := limit
		return &copied, nil
	}
	repo.hasTransactionsFn = func(ctx context.Context, id uuid.UUID) (bool, error) {
		return true, nil
	}

	var saved *models.SpendingLimit
	repo.saveFn = func(ctx context.Context, l *models.SpendingLimit) error {
		saved = l
		return nil
	}
	repo.deleteFn = func(ctx context.Context, id uuid.UUID) error {
		t.Fatal("referenced limit must not be hard-deleted")
		return nil
	}

	if err := svc.DeleteLimit(context.Background(), limit.ID); err != nil {
		t.Fatalf("DeleteLimit error: %v", err)
	}
	if saved == nil || saved.IsActive {
		t.Fatal("referenced limit should be deactivated")
	}
}
