package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// RequestLevel is the frozen, runtime copy of a workflow level. ApproverIDs
// is the approver set resolved at level activation (role expansion and
// delegations applied once); it stays stable even if delegations change
// mid-flight. Escalation appends the escalation target's approvers without
// touching ApprovalsReceived.
type RequestLevel struct {
	Name              string              `json:"name"`
	ApproverRole      *enums.EmployeeRole `json:"approverRole,omitempty"`
	ApproverIDs       []uuid.UUID         `json:"approverIds"`
	RequiredApprovals int                 `json:"requiredApprovals"`
	RequireAll        bool                `json:"requireAll"`
	EscalationHours   int                 `json:"escalationHours"`
	ApprovalsReceived int                 `json:"approvalsReceived"`
	ActedApproverIDs  []uuid.UUID         `json:"actedApproverIds,omitempty"`
	Escalated         bool                `json:"escalated"`
	ActivatedAt       *time.Time          `json:"activatedAt,omitempty"`
}

// HasApprover reports whether the employee may act on this level.
func (l RequestLevel) HasApprover(employeeID uuid.UUID) bool {
	for _, id := range l.ApproverIDs {
		if id == employeeID {
			return true
		}
	}
	return false
}

// HasActed reports whether the employee already recorded an approval here.
func (l RequestLevel) HasActed(employeeID uuid.UUID) bool {
	for _, id := range l.ActedApproverIDs {
		if id == employeeID {
			return true
		}
	}
	return false
}

// Complete reports whether the level quorum is met.
func (l RequestLevel) Complete() bool {
	if l.RequireAll {
		return len(l.ApproverIDs) > 0 && len(l.ActedApproverIDs) >= len(l.ApproverIDs)
	}
	return l.ApprovalsReceived >= l.RequiredApprovals
}

// RequestLevels is the jsonb column holding a request's frozen level chain.
// The chain order is immutable once created; only per-level counters and the
// request's current level index mutate.
type RequestLevels []RequestLevel

func (l RequestLevels) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *RequestLevels) Scan(src any) error {
	return scanJSON(src, l, "RequestLevels")
}

// ApprovalRequest is a running workflow instance bound to a held purchase.
// Version implements optimistic per-request serialization: every state
// transition is a compare-and-set on (id, version).
type ApprovalRequest struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID    uuid.UUID                `gorm:"column:company_id;type:uuid;not null"`
	WorkflowID   *uuid.UUID               `gorm:"column:workflow_id;type:uuid"`
	EntityType   enums.WorkflowEntityType `gorm:"column:entity_type;type:workflow_entity_type_enum;not null"`
	EntityID     uuid.UUID                `gorm:"column:entity_id;type:uuid;not null"`
	RequesterID  uuid.UUID                `gorm:"column:requester_id;type:uuid;not null"`
	Amount       decimal.Decimal          `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency     enums.Currency           `gorm:"column:currency;type:currency_enum;not null"`
	CategoryID   string                   `gorm:"column:category_id"`
	Reason       string                   `gorm:"column:reason"`
	Status       enums.ApprovalStatus     `gorm:"column:status;type:approval_status_enum;not null;default:'pending'"`
	PriorStatus  *enums.ApprovalStatus    `gorm:"column:prior_status;type:approval_status_enum"`
	CurrentLevel int                      `gorm:"column:current_level;not null;default:0"`
	Levels       RequestLevels            `gorm:"column:levels;type:jsonb;not null"`
	PausedAt     *time.Time               `gorm:"column:paused_at"`
	PausedSecs   int64                    `gorm:"column:paused_secs;not null;default:0"`
	Version      int                      `gorm:"column:version;not null;default:0"`
	CompletedAt  *time.Time               `gorm:"column:completed_at"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveLevel returns the level the request currently sits on.
func (r *ApprovalRequest) ActiveLevel() *RequestLevel {
	if r.CurrentLevel < 0 || r.CurrentLevel >= len(r.Levels) {
		return nil
	}
	return &r.Levels[r.CurrentLevel]
}

// EscalationDue computes when the active level escalates if untouched.
// Time spent in info_requested is excluded from the accounting.
func (r *ApprovalRequest) EscalationDue() *time.Time {
	level := r.ActiveLevel()
	if level == nil || level.EscalationHours <= 0 || level.ActivatedAt == nil {
		return nil
	}
	due := level.ActivatedAt.
		Add(time.Duration(level.EscalationHours) * time.Hour).
		Add(time.Duration(r.PausedSecs) * time.Second)
	return &due
}
