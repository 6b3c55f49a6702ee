package rules

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
)

// Repository manages persistence for spending rules.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.SpendingRule, error)
	ListActive(ctx context.Context, companyID uuid.UUID) ([]models.SpendingRule, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.SpendingRule, error)
	Create(ctx context.Context, rule *models.SpendingRule) error
	Save(ctx context.Context, rule *models.SpendingRule) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a rules repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SpendingRule, error) {
	var rule models.SpendingRule
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repository) ListActive(ctx context.Context, companyID uuid.UUID) ([]models.SpendingRule, error) {
	var rules []models.SpendingRule
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND is_active", companyID).
		Order("priority ASC, created_at ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.SpendingRule, error) {
	var rules []models.SpendingRule
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("priority ASC, created_at ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) Create(ctx context.Context, rule *models.SpendingRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *repository) Save(ctx context.Context, rule *models.SpendingRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.SpendingRule{}, "id = ?", id).Error
}
