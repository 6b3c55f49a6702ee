package limits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// Scope identifies one (entityType, entityId) pair a limit may attach to.
type Scope struct {
	EntityType enums.SpendingEntityType
	EntityID   uuid.UUID
}

// Repository manages persistence for spending limits.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error)
	ListForScopes(ctx context.Context, companyID uuid.UUID, scopes []Scope) ([]models.SpendingLimit, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.SpendingLimit, error)
	ListExpired(ctx context.Context, before time.Time, batch int) ([]models.SpendingLimit, error)
	ListOverWarning(ctx context.Context, batch int) ([]models.SpendingLimit, error)
	Create(ctx context.Context, limit *models.SpendingLimit) error
	Save(ctx context.Context, limit *models.SpendingLimit) error
	CompareAndSwap(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	HasTransactions(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a limits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error) {
	var limit models.SpendingLimit
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&limit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &limit, nil
}

func (r *repository) ListForScopes(ctx context.Context, companyID uuid.UUID, scopes []Scope) ([]models.SpendingLimit, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Model(&models.SpendingLimit{}).
		Where("company_id = ? AND is_active", companyID)

	scoped := r.db.Where("1 = 0")
	for _, scope := range scopes {
		scoped = scoped.Or(r.db.Where("entity_type = ? AND entity_id = ?", scope.EntityType, scope.EntityID))
	}
	query = query.Where(scoped)

	var limits []models.SpendingLimit
	if err := query.Order("created_at ASC").Find(&limits).Error; err != nil {
		return nil, err
	}
	return limits, nil
}

func (r *repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.SpendingLimit, error) {
	var limits []models.SpendingLimit
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND is_active", companyID).
		Order("created_at ASC").
		Find(&limits).Error; err != nil {
		return nil, err
	}
	return limits, nil
}

func (r *repository) ListExpired(ctx context.Context, before time.Time, batch int) ([]models.SpendingLimit, error) {
	var limits []models.SpendingLimit
	if err := r.db.WithContext(ctx).
		Where("is_active AND period IN ? AND period_end <= ?",
			[]enums.LimitPeriod{enums.LimitPeriodDaily, enums.LimitPeriodWeekly, enums.LimitPeriodMonthly}, before).
		Order("period_end ASC").
		Limit(batch).
		Find(&limits).Error; err != nil {
		return nil, err
	}
	return limits, nil
}

func (r *repository) ListOverWarning(ctx context.Context, batch int) ([]models.SpendingLimit, error) {
	var limits []models.SpendingLimit
	if err := r.db.WithContext(ctx).
		Where("is_active AND limit_amount > 0").
		Where("current_spending * 100 >= limit_amount * warning_threshold_pct").
		Order("updated_at ASC").
		Limit(batch).
		Find(&limits).Error; err != nil {
		return nil, err
	}
	return limits, nil
}

func (r *repository) Create(ctx context.Context, limit *models.SpendingLimit) error {
	return r.db.WithContext(ctx).Create(limit).Error
}

func (r *repository) Save(ctx context.Context, limit *models.SpendingLimit) error {
	return r.db.WithContext(ctx).Save(limit).Error
}

// CompareAndSwap applies updates only when the stored version still matches.
// The version column is bumped as part of the same statement.
func (r *repository) CompareAndSwap(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	updates["version"] = gorm.Expr("version + 1")
	result := r.db.WithContext(ctx).
		Model(&models.SpendingLimit{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) HasTransactions(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SpendingTransaction{}).
		Where("limit_id = ?", id).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.SpendingLimit{}, "id = ?", id).Error
}
