package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ApprovalDelegation temporarily reassigns one employee's approval authority
// to another, bounded by a date range, optional entity types, and an optional
// amount cap (unbounded when MaxAmount is nil).
type ApprovalDelegation struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID   uuid.UUID        `gorm:"column:company_id;type:uuid;not null"`
	DelegatorID uuid.UUID        `gorm:"column:delegator_id;type:uuid;not null"`
	DelegateeID uuid.UUID        `gorm:"column:delegatee_id;type:uuid;not null"`
	StartDate   time.Time        `gorm:"column:start_date;not null"`
	EndDate     time.Time        `gorm:"column:end_date;not null"`
	EntityTypes pq.StringArray   `gorm:"column:entity_types;type:text[]"`
	MaxAmount   *decimal.Decimal `gorm:"column:max_amount;type:numeric(14,2)"`
	IsActive    bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// CoversAt reports whether the delegation is live at the given instant.
func (d ApprovalDelegation) CoversAt(at time.Time) bool {
	return d.IsActive && !at.Before(d.StartDate) && !at.After(d.EndDate)
}

// CoversEntityType reports whether the delegation applies to the entity kind.
// An empty list means all entity types.
func (d ApprovalDelegation) CoversEntityType(entityType string) bool {
	if len(d.EntityTypes) == 0 {
		return true
	}
	for _, candidate := range d.EntityTypes {
		if candidate == entityType {
			return true
		}
	}
	return false
}

// CoversAmount reports whether the delegation applies to the given amount.
func (d ApprovalDelegation) CoversAmount(amount decimal.Decimal) bool {
	return d.MaxAmount == nil || amount.LessThanOrEqual(*d.MaxAmount)
}
