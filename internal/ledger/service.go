package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/pagination"
)

// Service defines operations over the append-only spending ledger.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordTransactionInput) (*models.SpendingTransaction, error)
	RecordAdjustment(ctx context.Context, input RecordTransactionInput) (*models.SpendingTransaction, error)
	ListTransactions(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.SpendingTransaction, string, error)
	SumForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	TrailingActivity(ctx context.Context, employeeID uuid.UUID, window time.Duration) (int64, decimal.Decimal, error)
}

type service struct {
	repo Repository
}

// RecordTransactionInput captures the immutable data a ledger entry requires.
// Amount is signed: purchases positive, refunds and downward adjustments
// negative.
type RecordTransactionInput struct {
	CompanyID       uuid.UUID
	EntityType      enums.SpendingEntityType
	EntityID        uuid.UUID
	LimitID         *uuid.UUID
	Type            enums.TransactionType
	Amount          decimal.Decimal
	Currency        enums.Currency
	CategoryID      string
	Reference       string
	ActorEmployeeID uuid.UUID
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) validate(input RecordTransactionInput) error {
	if input.CompanyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	if input.EntityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if !input.EntityType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid entity type %q", input.EntityType))
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	if input.ActorEmployeeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor employee id is required")
	}
	return nil
}

// Record appends a transaction, chaining balance_before and entity_seq from
// the entity's latest entry. The unique (entity_type, entity_id, entity_seq)
// index rejects a forked chain when two writers read the same tail. Outside a
// caller transaction the loser re-reads the tail and retries once; inside one
// the violation surfaces as CONFLICT, since the enclosing transaction is
// already aborted.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordTransactionInput) (*models.SpendingTransaction, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	transaction, err := s.append(ctx, repo, input)
	if err == nil {
		return transaction, nil
	}
	if !db.IsUniqueViolation(err, "") {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}
	if tx != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "ledger chain advanced during record")
	}

	transaction, err = s.append(ctx, repo, input)
	if err == nil {
		return transaction, nil
	}
	if db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "ledger chain advanced during record")
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
}

func (s *service) append(ctx context.Context, repo Repository, input RecordTransactionInput) (*models.SpendingTransaction, error) {
	last, err := repo.LastForEntity(ctx, input.EntityType, input.EntityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read entity balance")
	}
	balanceBefore := decimal.Zero
	seq := int64(1)
	if last != nil {
		balanceBefore = last.BalanceAfter
		seq = last.EntitySeq + 1
	}

	transaction := &models.SpendingTransaction{
		CompanyID:       input.CompanyID,
		EntityType:      input.EntityType,
		EntityID:        input.EntityID,
		EntitySeq:       seq,
		LimitID:         input.LimitID,
		Type:            input.Type,
		Amount:          input.Amount,
		BalanceBefore:   balanceBefore,
		BalanceAfter:    balanceBefore.Add(input.Amount),
		Currency:        input.Currency,
		CategoryID:      input.CategoryID,
		Reference:       input.Reference,
		ActorEmployeeID: input.ActorEmployeeID,
	}
	if err := repo.Create(ctx, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

func (s *service) RecordAdjustment(ctx context.Context, input RecordTransactionInput) (*models.SpendingTransaction, error) {
	input.Type = enums.TransactionTypeAdjustment
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment reference is required")
	}
	return s.Record(ctx, nil, input)
}

func (s *service) ListTransactions(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.SpendingTransaction, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	transactions, err := s.repo.List(ctx, filter, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	next := ""
	if len(transactions) > limit {
		transactions = transactions[:limit]
		tail := transactions[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: tail.CreatedAt, ID: tail.ID})
	}
	return transactions, next, nil
}

func (s *service) SumForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	if entityID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	return s.repo.SumForEntity(ctx, entityType, entityID, from, to)
}

func (s *service) TrailingActivity(ctx context.Context, employeeID uuid.UUID, window time.Duration) (int64, decimal.Decimal, error) {
	if employeeID == uuid.Nil {
		return 0, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	if window <= 0 {
		return 0, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "trailing window must be positive")
	}
	return s.repo.TrailingActivity(ctx, employeeID, time.Now().Add(-window))
}
