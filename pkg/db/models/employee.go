package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// Employee is the purchasing actor shape the engine depends on: company,
// department, and role. Identity and CRUD live in the account platform.
type Employee struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID    uuid.UUID          `gorm:"column:company_id;type:uuid;not null"`
	DepartmentID *uuid.UUID         `gorm:"column:department_id;type:uuid"`
	Role         enums.EmployeeRole `gorm:"column:role;type:employee_role_enum;not null"`
	Email        string             `gorm:"column:email;not null"`
	FullName     string             `gorm:"column:full_name;not null"`
	IsActive     bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
