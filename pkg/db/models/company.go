package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// Company is a buying company. Rows are managed by the account platform;
// the spend engine only reads them.
type Company struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string         `gorm:"column:name;not null"`
	Currency  enums.Currency `gorm:"column:currency;type:currency_enum;not null;default:'EUR'"`
	IsActive  bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
