package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/pagination"
)

type fakeRepository struct {
	createFn           func(ctx context.Context, transaction *models.SpendingTransaction) error
	lastForEntityFn    func(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID) (*models.SpendingTransaction, error)
	listFn             func(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.SpendingTransaction, error)
	sumForEntityFn     func(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	trailingActivityFn func(ctx context.Context, employeeID uuid.UUID, since time.Time) (int64, decimal.Decimal, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, transaction *models.SpendingTransaction) error {
	if f.createFn != nil {
		return f.createFn(ctx, transaction)
	}
	return nil
}

func (f *fakeRepository) LastForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID) (*models.SpendingTransaction, error) {
	if f.lastForEntityFn != nil {
		return f.lastForEntityFn(ctx, entityType, entityID)
	}
	return nil, nil
}

func (f *fakeRepository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.SpendingTransaction, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter, cursor, limit)
	}
	return nil, nil
}

func (f *fakeRepository) SumForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	if f.sumForEntityFn != nil {
		return f.sumForEntityFn(ctx, entityType, entityID, from, to)
	}
	return decimal.Zero, nil
}

func (f *fakeRepository) TrailingActivity(ctx context.Context, employeeID uuid.UUID, since time.Time) (int64, decimal.Decimal, error) {
	if f.trailingActivityFn != nil {
		return f.trailingActivityFn(ctx, employeeID, since)
	}
	return 0, decimal.Zero, nil
}

func validInput() RecordTransactionInput {
	return RecordTransactionInput{
		CompanyID:       uuid.New(),
		EntityType:      enums.SpendingEntityTypeEmployee,
		EntityID:        uuid.New(),
		Type:            enums.TransactionTypeOrder,
		Amount:          decimal.NewFromInt(150),
		Currency:        enums.CurrencyEUR,
		Reference:       "order-123",
		ActorEmployeeID: uuid.New(),
	}
}

func TestService_RecordChainsBalances(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	repo.lastForEntityFn = func(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID) (*models.SpendingTransaction, error) {
		return &models.SpendingTransaction{
			BalanceAfter: decimal.NewFromInt(4800),
			EntitySeq:    11,
		}, nil
	}

	var created *models.SpendingTransaction
	repo.createFn = func(ctx context.Context, transaction *models.SpendingTransaction) error {
		created = transaction
		return nil
	}

	got, err := svc.Record(context.Background(), nil, validInput())
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if created == nil {
		t.Fatal("expected transaction to be created")
	}
	if !created.BalanceBefore.Equal(decimal.NewFromInt(4800)) {
		t.Fatalf("balance before = %s, want 4800", created.BalanceBefore)
	}
	if !created.BalanceAfter.Equal(decimal.NewFromInt(4950)) {
		t.Fatalf("balance after = %s, want 4950", created.BalanceAfter)
	}
	if got != created {
		t.Fatal("service should return the created transaction")
	}
	if created.EntitySeq != 12 {
		t.Fatalf("entity seq = %d, want 12", created.EntitySeq)
	}
}

func TestService_RecordRetriesWhenChainAdvances(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	tail := &models.SpendingTransaction{
		BalanceAfter: decimal.NewFromInt(100),
		EntitySeq:    3,
	}
	repo.lastForEntityFn = func(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID) (*models.SpendingTransaction, error) {
		return tail, nil
	}

	attempts := 0
	var created *models.SpendingTransaction
	repo.createFn = func(ctx context.Context, transaction *models.SpendingTransaction) error {
		attempts++
		if attempts == 1 {
			// Another writer appended seq 4 between our read and insert.
			tail = &models.SpendingTransaction{
				BalanceAfter: decimal.NewFromInt(250),
				EntitySeq:    4,
			}
			return errors.New(`duplicate key value violates unique constraint "ux_spending_transactions_entity_seq"`)
		}
		created = transaction
		return nil
	}

	if _, err := svc.Record(context.Background(), nil, validInput()); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("create attempts = %d, want 2", attempts)
	}
	if created.EntitySeq != 5 {
		t.Fatalf("entity seq = %d, want 5", created.EntitySeq)
	}
	if !created.BalanceBefore.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("balance before = %s, want 250", created.BalanceBefore)
	}
}

func TestService_RecordConflictAfterRetry(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	attempts := 0
	repo.createFn = func(ctx context.Context, transaction *models.SpendingTransaction) error {
		attempts++
		return errors.New(`duplicate key value violates unique constraint "ux_spending_transactions_entity_seq"`)
	}

	_, err := svc.Record(context.Background(), nil, validInput())
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("create attempts = %d, want 2", attempts)
	}
}

func TestService_RecordConflictInsideTransaction(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	attempts := 0
	repo.createFn = func(ctx context.Context, transaction *models.SpendingTransaction) error {
		attempts++
		return errors.New(`duplicate key value violates unique constraint "ux_spending_transactions_entity_seq"`)
	}

	// Inside a caller transaction the insert cannot be retried: the
	// violation has already aborted the enclosing transaction.
	_, err := svc.Record(context.Background(), &gorm.DB{}, validInput())
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("create attempts = %d, want 1", attempts)
	}
}

func TestService_RecordFirstEntryStartsAtZero(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	var created *models.SpendingTransaction
	repo.createFn = func(ctx context.Context, transaction *models.SpendingTransaction) error {
		created = transaction
		return nil
	}

	if _, err := svc.Record(context.Background(), nil, validInput()); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if !created.BalanceBefore.IsZero() {
		t.Fatalf("first entry balance before = %s, want 0", created.BalanceBefore)
	}
	if !created.BalanceAfter.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("first entry balance after = %s, want 150", created.BalanceAfter)
	}
}

func TestService_RecordValidation(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	tests := []struct {
		name   string
		mutate func(input *RecordTransactionInput)
	}{
		{"missing company", func(input *RecordTransactionInput) { input.CompanyID = uuid.Nil }},
		{"missing entity", func(input *RecordTransactionInput) { input.EntityID = uuid.Nil }},
		{"bad entity type", func(input *RecordTransactionInput) { input.EntityType = "store" }},
		{"bad type", func(input *RecordTransactionInput) { input.Type = "chargeback" }},
		{"bad currency", func(input *RecordTransactionInput) { input.Currency = "JPY" }},
		{"missing actor", func(input *RecordTransactionInput) { input.ActorEmployeeID = uuid.Nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			if _, err := svc.Record(context.Background(), nil, input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_RecordAdjustmentRequiresReference(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	input := validInput()
	input.Reference = ""
	if _, err := svc.RecordAdjustment(context.Background(), input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	input.Reference = "period reset"
	var created *models.SpendingTransaction
	repo.createFn = func(ctx context.Context, transaction *models.SpendingTransaction) error {
		created = transaction
		return nil
	}
	if _, err := svc.RecordAdjustment(context.Background(), input); err != nil {
		t.Fatalf("RecordAdjustment error: %v", err)
	}
	if created.Type != enums.TransactionTypeAdjustment {
		t.Fatalf("type = %s, want adjustment", created.Type)
	}
}

func TestService_ListTransactionsPaginates(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	now := time.Now().UTC()
	rows := make([]models.SpendingTransaction, 0, 26)
	for i := 0; i < 26; i++ {
		rows = append(rows, models.SpendingTransaction{
			ID:        uuid.New(),
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	repo.listFn = func(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.SpendingTransaction, error) {
		if limit != pagination.DefaultLimit+1 {
			t.Fatalf("limit = %d, want %d", limit, pagination.DefaultLimit+1)
		}
		return rows, nil
	}

	page, next, err := svc.ListTransactions(context.Background(), ListFilter{}, pagination.Params{})
	if err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if len(page) != pagination.DefaultLimit {
		t.Fatalf("page size = %d, want %d", len(page), pagination.DefaultLimit)
	}
	if next == "" {
		t.Fatal("expected a next cursor")
	}
	cursor, err := pagination.ParseCursor(next)
	if err != nil {
		t.Fatalf("cursor should round-trip: %v", err)
	}
	if cursor.ID != rows[pagination.DefaultLimit-1].ID {
		t.Fatal("cursor should point at the last returned row")
	}
}

func TestService_TrailingActivityValidatesWindow(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	if _, _, err := svc.TrailingActivity(context.Background(), uuid.New(), 0); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	repo.trailingActivityFn = func(ctx context.Context, employeeID uuid.UUID, since time.Time) (int64, decimal.Decimal, error) {
		if time.Until(since) > -50*time.Minute {
			t.Fatalf("since should be about an hour back, got %s", since)
		}
		return 4, decimal.NewFromInt(900), nil
	}
	count, total, err := svc.TrailingActivity(context.Background(), uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("TrailingActivity error: %v", err)
	}
	if count != 4 || !total.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("unexpected activity: count=%d total=%s", count, total)
	}
}
