package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// SpendingTransaction is an immutable ledger entry. Rows are never updated or
// deleted; corrections are new adjustment entries. BalanceAfter always equals
// BalanceBefore plus the signed amount. EntitySeq numbers the entity's chain;
// a unique index on (entity_type, entity_id, entity_seq) rejects forked
// chains from concurrent writers.
type SpendingTransaction struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID       uuid.UUID                `gorm:"column:company_id;type:uuid;not null"`
	EntityType      enums.SpendingEntityType `gorm:"column:entity_type;type:spending_entity_type_enum;not null"`
	EntityID        uuid.UUID                `gorm:"column:entity_id;type:uuid;not null"`
	EntitySeq       int64                    `gorm:"column:entity_seq;not null"`
	LimitID         *uuid.UUID               `gorm:"column:limit_id;type:uuid"`
	Type            enums.TransactionType    `gorm:"column:type;type:spending_transaction_type_enum;not null"`
	Amount          decimal.Decimal          `gorm:"column:amount;type:numeric(14,2);not null"`
	BalanceBefore   decimal.Decimal          `gorm:"column:balance_before;type:numeric(14,2);not null"`
	BalanceAfter    decimal.Decimal          `gorm:"column:balance_after;type:numeric(14,2);not null"`
	Currency        enums.Currency           `gorm:"column:currency;type:currency_enum;not null"`
	CategoryID      string                   `gorm:"column:category_id"`
	Reference       string                   `gorm:"column:reference"`
	ActorEmployeeID uuid.UUID                `gorm:"column:actor_employee_id;type:uuid;not null"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
}
