package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// SpendingAlert flags a limit that crossed its warning threshold or was
// exceeded. At most one alert per (limit, type, period start) is created.
type SpendingAlert struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID   uuid.UUID                `gorm:"column:company_id;type:uuid;not null"`
	LimitID     uuid.UUID                `gorm:"column:limit_id;type:uuid;not null"`
	EntityType  enums.SpendingEntityType `gorm:"column:entity_type;type:spending_entity_type_enum;not null"`
	EntityID    uuid.UUID                `gorm:"column:entity_id;type:uuid;not null"`
	Type        enums.AlertType          `gorm:"column:type;type:alert_type_enum;not null"`
	Message     string                   `gorm:"column:message;not null"`
	PeriodStart time.Time                `gorm:"column:period_start;not null"`
	DismissedAt *time.Time               `gorm:"column:dismissed_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
}
