package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// Notification is a fire-and-forget message to one employee.
type Notification struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID  uuid.UUID              `gorm:"column:company_id;type:uuid;not null"`
	EmployeeID uuid.UUID              `gorm:"column:employee_id;type:uuid;not null"`
	Type       enums.NotificationType `gorm:"column:type;type:notification_type_enum;not null"`
	Title      string                 `gorm:"column:title;not null"`
	Body       string                 `gorm:"column:body"`
	Data       json.RawMessage        `gorm:"column:data;type:jsonb"`
	ReadAt     *time.Time             `gorm:"column:read_at"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
}
