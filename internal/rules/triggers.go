package rules

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// AmountExceedsParams triggers when the purchase amount is above Threshold.
type AmountExceedsParams struct {
	Threshold decimal.Decimal `json:"threshold"`
}

// CategoryRestrictedParams triggers when the purchase category is listed.
type CategoryRestrictedParams struct {
	Categories []string `json:"categories"`
}

// TimeWindowParams triggers when the purchase timestamp falls inside the
// restricted window [StartHour, EndHour) in UTC. A window with StartHour
// greater than EndHour wraps midnight, e.g. 20 to 6 covers overnight hours.
type TimeWindowParams struct {
	StartHour int `json:"startHour"`
	EndHour   int `json:"endHour"`
}

// VelocityParams triggers when the employee's trailing activity inside a
// sliding WindowMinutes window exceeds MaxCount orders or MaxAmount total
// spend. At least one of the two caps must be set.
type VelocityParams struct {
	WindowMinutes int              `json:"windowMinutes"`
	MaxCount      *int64           `json:"maxCount,omitempty"`
	MaxAmount     *decimal.Decimal `json:"maxAmount,omitempty"`
}

// ParseTriggerParams decodes and validates a rule's trigger document.
func ParseTriggerParams(rule models.SpendingRule) (any, error) {
	switch rule.TriggerType {
	case enums.RuleTriggerAmountExceeds:
		var params AmountExceedsParams
		if err := json.Unmarshal(rule.TriggerParams, &params); err != nil {
			return nil, fmt.Errorf("amount_exceeds params: %w", err)
		}
		if params.Threshold.IsNegative() {
			return nil, fmt.Errorf("amount_exceeds threshold cannot be negative")
		}
		return params, nil
	case enums.RuleTriggerCategoryRestricted:
		var params CategoryRestrictedParams
		if err := json.Unmarshal(rule.TriggerParams, &params); err != nil {
			return nil, fmt.Errorf("category_restricted params: %w", err)
		}
		if len(params.Categories) == 0 {
			return nil, fmt.Errorf("category_restricted needs at least one category")
		}
		return params, nil
	case enums.RuleTriggerTimeWindow:
		var params TimeWindowParams
		if err := json.Unmarshal(rule.TriggerParams, &params); err != nil {
			return nil, fmt.Errorf("time_window params: %w", err)
		}
		if params.StartHour < 0 || params.StartHour > 23 || params.EndHour < 0 || params.EndHour > 24 {
			return nil, fmt.Errorf("time_window hours out of range")
		}
		if params.StartHour == params.EndHour {
			return nil, fmt.Errorf("time_window is empty")
		}
		return params, nil
	case enums.RuleTriggerVelocity:
		var params VelocityParams
		if err := json.Unmarshal(rule.TriggerParams, &params); err != nil {
			return nil, fmt.Errorf("velocity params: %w", err)
		}
		if params.WindowMinutes <= 0 {
			return nil, fmt.Errorf("velocity window must be positive")
		}
		if params.MaxCount == nil && params.MaxAmount == nil {
			return nil, fmt.Errorf("velocity needs a count or amount cap")
		}
		if params.MaxCount != nil && *params.MaxCount <= 0 {
			return nil, fmt.Errorf("velocity count cap must be positive")
		}
		if params.MaxAmount != nil && params.MaxAmount.IsNegative() {
			return nil, fmt.Errorf("velocity amount cap cannot be negative")
		}
		return params, nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", rule.TriggerType)
	}
}

func insideWindow(hour int, params TimeWindowParams) bool {
	if params.StartHour < params.EndHour {
		return hour >= params.StartHour && hour < params.EndHour
	}
	return hour >= params.StartHour || hour < params.EndHour
}
