package reporting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// Window bounds an aggregation query. EntityType/EntityID are optional and
// narrow the report to one spending entity.
type Window struct {
	CompanyID  uuid.UUID
	EntityType enums.SpendingEntityType
	EntityID   uuid.UUID
	From       time.Time
	To         time.Time
}

// Totals is the headline aggregate for a window.
type Totals struct {
	Count int64
	Total decimal.NullDecimal
}

// CategoryTotal is spending grouped by product category.
type CategoryTotal struct {
	CategoryID string          `json:"categoryId"`
	Count      int64           `json:"count"`
	Total      decimal.Decimal `json:"total"`
}

// TypeTotal is spending grouped by transaction type.
type TypeTotal struct {
	Type  enums.TransactionType `json:"type"`
	Count int64                 `json:"count"`
	Total decimal.Decimal       `json:"total"`
}

// EmployeeTotal is one row of the top-spenders breakdown.
type EmployeeTotal struct {
	EmployeeID uuid.UUID       `json:"employeeId"`
	Count      int64           `json:"count"`
	Total      decimal.Decimal `json:"total"`
}

// DayTotal is one day of the report's spending series.
type DayTotal struct {
	Day   time.Time       `json:"day"`
	Total decimal.Decimal `json:"total"`
}

// Repository runs read-only aggregation over the spending ledger.
type Repository interface {
	Totals(ctx context.Context, window Window) (Totals, error)
	ByCategory(ctx context.Context, window Window) ([]CategoryTotal, error)
	ByType(ctx context.Context, window Window) ([]TypeTotal, error)
	TopEmployees(ctx context.Context, window Window, top int) ([]EmployeeTotal, error)
	DailySeries(ctx context.Context, window Window) ([]DayTotal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reporting repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) scoped(ctx context.Context, window Window) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.SpendingTransaction{}).
		Where("company_id = ?", window.CompanyID).
		Where("created_at >= ? AND created_at < ?", window.From, window.To)
	if window.EntityType != "" && window.EntityID != uuid.Nil {
		switch window.EntityType {
		case enums.SpendingEntityTypeCompany:
			// company_id above already covers every row in scope
		case enums.SpendingEntityTypeDepartment:
			query = query.Where(
				"(entity_type = ? AND entity_id = ?) OR (entity_type = ? AND entity_id IN (SELECT id FROM employees WHERE department_id = ?))",
				enums.SpendingEntityTypeDepartment, window.EntityID,
				enums.SpendingEntityTypeEmployee, window.EntityID,
			)
		default:
			query = query.Where("entity_type = ? AND entity_id = ?", window.EntityType, window.EntityID)
		}
	}
	return query
}

func (r *repository) Totals(ctx context.Context, window Window) (Totals, error) {
	var totals Totals
	err := r.scoped(ctx, window).
		Select("COUNT(*) AS count, SUM(amount) AS total").
		Scan(&totals).Error
	return totals, err
}

func (r *repository) ByCategory(ctx context.Context, window Window) ([]CategoryTotal, error) {
	var rows []CategoryTotal
	err := r.scoped(ctx, window).
		Select("category_id, COUNT(*) AS count, SUM(amount) AS total").
		Where("category_id <> ''").
		Group("category_id").
		Order("total DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) ByType(ctx context.Context, window Window) ([]TypeTotal, error) {
	var rows []TypeTotal
	err := r.scoped(ctx, window).
		Select("type, COUNT(*) AS count, SUM(amount) AS total").
		Group("type").
		Order("total DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) TopEmployees(ctx context.Context, window Window, top int) ([]EmployeeTotal, error) {
	var rows []EmployeeTotal
	err := r.scoped(ctx, window).
		Select("entity_id AS employee_id, COUNT(*) AS count, SUM(amount) AS total").
		Where("entity_type = ?", enums.SpendingEntityTypeEmployee).
		Group("entity_id").
		Order("total DESC").
		Limit(top).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) DailySeries(ctx context.Context, window Window) ([]DayTotal, error) {
	var rows []DayTotal
	err := r.scoped(ctx, window).
		Select("date_trunc('day', created_at) AS day, SUM(amount) AS total").
		Group("date_trunc('day', created_at)").
		Order("day ASC").
		Scan(&rows).Error
	return rows, err
}
