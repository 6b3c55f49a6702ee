package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	"github.com/bijouxtrade/bijoux-backend/pkg/pagination"
)

// ListFilter narrows a transaction listing.
type ListFilter struct {
	CompanyID  uuid.UUID
	EntityType enums.SpendingEntityType
	EntityID   uuid.UUID
	Type       enums.TransactionType
	From       *time.Time
	To         *time.Time
}

// Repository manages persistence for the spending ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transaction *models.SpendingTransaction) error
	LastForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID) (*models.SpendingTransaction, error)
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.SpendingTransaction, error)
	SumForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	TrailingActivity(ctx context.Context, employeeID uuid.UUID, since time.Time) (int64, decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transaction *models.SpendingTransaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repository) LastForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID) (*models.SpendingTransaction, error) {
	var transaction models.SpendingTransaction
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("entity_seq DESC").
		First(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.SpendingTransaction, error) {
	query := r.db.WithContext(ctx).Model(&models.SpendingTransaction{})
	if filter.CompanyID != uuid.Nil {
		query = query.Where("company_id = ?", filter.CompanyID)
	}
	if filter.EntityID != uuid.Nil {
		query = query.Where("entity_type = ? AND entity_id = ?", filter.EntityType, filter.EntityID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var transactions []models.SpendingTransaction
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

// SumForEntity rolls employee rows up through membership: a department's sum
// includes its members' purchases, a company's sum includes every row carrying
// its company_id. Each economic event is exactly one ledger row, so the
// roll-up never double-counts.
func (r *repository) SumForEntity(ctx context.Context, entityType enums.SpendingEntityType, entityID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SpendingTransaction{}).
		Select("SUM(amount)").
		Where("created_at >= ? AND created_at < ?", from, to)

	switch entityType {
	case enums.SpendingEntityTypeCompany:
		query = query.Where("company_id = ?", entityID)
	case enums.SpendingEntityTypeDepartment:
		query = query.Where(
			"(entity_type = ? AND entity_id = ?) OR (entity_type = ? AND entity_id IN (SELECT id FROM employees WHERE department_id = ?))",
			enums.SpendingEntityTypeDepartment, entityID,
			enums.SpendingEntityTypeEmployee, entityID,
		)
	default:
		query = query.Where("entity_type = ? AND entity_id = ?", entityType, entityID)
	}

	var total decimal.NullDecimal
	err := query.Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *repository) TrailingActivity(ctx context.Context, employeeID uuid.UUID, since time.Time) (int64, decimal.Decimal, error) {
	type row struct {
		Count int64
		Total decimal.NullDecimal
	}
	var result row
	err := r.db.WithContext(ctx).
		Model(&models.SpendingTransaction{}).
		Select("COUNT(*) AS count, SUM(amount) AS total").
		Where("entity_type = ? AND entity_id = ?", enums.SpendingEntityTypeEmployee, employeeID).
		Where("type IN ?", []enums.TransactionType{enums.TransactionTypeOrder, enums.TransactionTypePayment}).
		Where("created_at >= ?", since).
		Scan(&result).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	total := decimal.Zero
	if result.Total.Valid {
		total = result.Total.Decimal
	}
	return result.Count, total, nil
}
