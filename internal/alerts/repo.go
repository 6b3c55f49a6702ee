package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// Repository manages persistence for spending alerts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.SpendingAlert, error)
	Exists(ctx context.Context, limitID uuid.UUID, alertType enums.AlertType, periodStart time.Time) (bool, error)
	Create(ctx context.Context, alert *models.SpendingAlert) error
	ListOpenByCompany(ctx context.Context, companyID uuid.UUID) ([]models.SpendingAlert, error)
	Dismiss(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an alerts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SpendingAlert, error) {
	var alert models.SpendingAlert
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *repository) Exists(ctx context.Context, limitID uuid.UUID, alertType enums.AlertType, periodStart time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SpendingAlert{}).
		Where("limit_id = ? AND type = ? AND period_start = ?", limitID, alertType, periodStart).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Create(ctx context.Context, alert *models.SpendingAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *repository) ListOpenByCompany(ctx context.Context, companyID uuid.UUID) ([]models.SpendingAlert, error) {
	var alerts []models.SpendingAlert
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND dismissed_at IS NULL", companyID).
		Order("created_at DESC").
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *repository) Dismiss(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.SpendingAlert{}).
		Where("id = ? AND dismissed_at IS NULL", id).
		Update("dismissed_at", gorm.Expr("now()")).Error
}
