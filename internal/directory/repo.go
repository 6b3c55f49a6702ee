package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// Repository reads companies, departments, and employees. The rows are
// managed by the account platform; this engine only resolves scoping and
// approver eligibility from them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	FindEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	ListEmployeesByRole(ctx context.Context, companyID uuid.UUID, role enums.EmployeeRole) ([]models.Employee, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a directory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active", id).
		First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *repository) FindEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	var employee models.Employee
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active", id).
		First(&employee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

func (r *repository) ListEmployeesByRole(ctx context.Context, companyID uuid.UUID, role enums.EmployeeRole) ([]models.Employee, error) {
	var employees []models.Employee
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND role = ? AND is_active", companyID, role).
		Order("created_at ASC").
		Find(&employees).Error; err != nil {
		return nil, err
	}
	return employees, nil
}
