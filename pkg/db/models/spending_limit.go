package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// SpendingLimit caps spending for an entity over a recurring period.
// CurrentSpending is a materialized view over spending_transactions for the
// open period; the ledger stays authoritative and the value is recomputed on
// demand. Version guards the cached counter against concurrent commits.
type SpendingLimit struct {
	ID                  uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID           uuid.UUID                `gorm:"column:company_id;type:uuid;not null"`
	Name                string                   `gorm:"column:name;not null"`
	EntityType          enums.SpendingEntityType `gorm:"column:entity_type;type:spending_entity_type_enum;not null"`
	EntityID            uuid.UUID                `gorm:"column:entity_id;type:uuid;not null"`
	Period              enums.LimitPeriod        `gorm:"column:period;type:limit_period_enum;not null"`
	LimitAmount         decimal.Decimal          `gorm:"column:limit_amount;type:numeric(14,2);not null"`
	Currency            enums.Currency           `gorm:"column:currency;type:currency_enum;not null"`
	WarningThresholdPct int                      `gorm:"column:warning_threshold_pct;not null;default:80"`
	CurrentSpending     decimal.Decimal          `gorm:"column:current_spending;type:numeric(14,2);not null;default:0"`
	PeriodStart         time.Time                `gorm:"column:period_start;not null"`
	PeriodEnd           time.Time                `gorm:"column:period_end;not null"`
	IsActive            bool                     `gorm:"column:is_active;not null;default:true"`
	Version             int                      `gorm:"column:version;not null;default:0"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// Remaining is the budget left in the open period.
func (l SpendingLimit) Remaining() decimal.Decimal {
	return l.LimitAmount.Sub(l.CurrentSpending)
}

// WarningAmount is the spend level at which a warning alert fires.
func (l SpendingLimit) WarningAmount() decimal.Decimal {
	pct := decimal.NewFromInt(int64(l.WarningThresholdPct))
	return l.LimitAmount.Mul(pct).Div(decimal.NewFromInt(100))
}
