package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// ApprovalAction is one audit-log entry against an approval request. Entries
// survive rejection and escalation: a manager's earlier approval stays on
// record even when finance later rejects. DelegatedFromID preserves the
// reassignment source when a delegate acts.
type ApprovalAction struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequestID       uuid.UUID                `gorm:"column:request_id;type:uuid;not null"`
	LevelIndex      int                      `gorm:"column:level_index;not null"`
	ActorID         uuid.UUID                `gorm:"column:actor_id;type:uuid;not null"`
	DelegatedFromID *uuid.UUID               `gorm:"column:delegated_from_id;type:uuid"`
	Action          enums.ApprovalActionType `gorm:"column:action;type:approval_action_type_enum;not null"`
	Comment         string                   `gorm:"column:comment"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
}
