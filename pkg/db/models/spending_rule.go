package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// SpendingRule is a company-configured policy predicate over prospective
// purchases. TriggerParams is a per-trigger-type JSON document parsed by the
// rule engine; malformed params exclude the rule from evaluation rather than
// failing the check.
type SpendingRule struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID     uuid.UUID             `gorm:"column:company_id;type:uuid;not null"`
	Name          string                `gorm:"column:name;not null"`
	TriggerType   enums.RuleTriggerType `gorm:"column:trigger_type;type:rule_trigger_type_enum;not null"`
	TriggerParams json.RawMessage       `gorm:"column:trigger_params;type:jsonb;not null"`
	Action        enums.RuleAction      `gorm:"column:action;type:rule_action_enum;not null"`
	Priority      int                   `gorm:"column:priority;not null;default:100"`
	IsActive      bool                  `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
