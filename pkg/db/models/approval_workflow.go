package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/bijouxtrade/bijoux-backend/pkg/db/types"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// WorkflowTrigger selects a workflow for an entity at request-creation time.
// A workflow matches when any of its triggers match.
type WorkflowTrigger struct {
	Type       enums.RuleTriggerType `json:"type"`
	Threshold  *decimal.Decimal      `json:"threshold,omitempty"`
	Categories []string              `json:"categories,omitempty"`
}

// WorkflowTriggers is the jsonb column holding a workflow's trigger list.
type WorkflowTriggers []WorkflowTrigger

func (t WorkflowTriggers) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *WorkflowTriggers) Scan(src any) error {
	return scanJSON(src, t, "WorkflowTriggers")
}

// WorkflowLevel is one stage of an approval chain as configured by an admin.
// Approvers are either a role (resolved per level activation) or an explicit
// id list.
type WorkflowLevel struct {
	Name              string              `json:"name"`
	ApproverRole      *enums.EmployeeRole `json:"approverRole,omitempty"`
	ApproverIDs       dbtypes.UUIDArray   `json:"approverIds,omitempty"`
	RequiredApprovals int                 `json:"requiredApprovals"`
	RequireAll        bool                `json:"requireAll"`
	EscalationHours   int                 `json:"escalationHours"`
}

// WorkflowLevels is the jsonb column holding a workflow's level chain.
type WorkflowLevels []WorkflowLevel

func (l WorkflowLevels) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *WorkflowLevels) Scan(src any) error {
	return scanJSON(src, l, "WorkflowLevels")
}

// ApprovalWorkflow is admin-owned configuration. Workflows are versioned by
// replacement: an update deactivates the old row and inserts a successor, so
// in-flight requests keep the level snapshot they were created with.
type ApprovalWorkflow struct {
	ID                  uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID           uuid.UUID                `gorm:"column:company_id;type:uuid;not null"`
	Name                string                   `gorm:"column:name;not null"`
	EntityType          enums.WorkflowEntityType `gorm:"column:entity_type;type:workflow_entity_type_enum;not null"`
	Triggers            WorkflowTriggers         `gorm:"column:triggers;type:jsonb;not null"`
	Levels              WorkflowLevels           `gorm:"column:levels;type:jsonb;not null"`
	FallbackApproverIDs dbtypes.UUIDArray        `gorm:"column:fallback_approver_ids;type:uuid[]"`
	Version             int                      `gorm:"column:version;not null;default:1"`
	IsActive            bool                     `gorm:"column:is_active;not null;default:true"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func scanJSON(src, dest any, label string) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("%s: unsupported Scan type %T", label, src)
	}
}
