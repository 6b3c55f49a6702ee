package authorizer

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/internal/rules"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
)

// AffectedLimit is one applicable limit annotated with the effect the
// prospective purchase would have on it.
type AffectedLimit struct {
	Limit             models.SpendingLimit `json:"limit"`
	RemainingAfter    decimal.Decimal      `json:"remainingAfter"`
	WouldExceed       bool                 `json:"wouldExceed"`
	WouldCrossWarning bool                 `json:"wouldCrossWarning"`
}

// SpendingCheckResult is the single decision checkPurchase returns. It is a
// dry run: nothing is held or recorded until the commit path runs.
type SpendingCheckResult struct {
	Allowed            bool                  `json:"allowed"`
	Reason             string                `json:"reason,omitempty"`
	AffectedLimits     []AffectedLimit       `json:"affectedLimits"`
	TriggeredRules     []rules.TriggeredRule `json:"triggeredRules"`
	RequiresApproval   bool                  `json:"requiresApproval"`
	ApprovalWorkflowID *uuid.UUID            `json:"approvalWorkflowId,omitempty"`
}

// BudgetRemaining reports the live headroom on one limit.
type BudgetRemaining struct {
	Limit     models.SpendingLimit `json:"limit"`
	Spent     decimal.Decimal      `json:"spent"`
	Remaining decimal.Decimal      `json:"remaining"`
}
