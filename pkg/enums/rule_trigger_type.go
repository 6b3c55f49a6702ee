package enums

import "fmt"

// RuleTriggerType names the predicate kind of a spending rule.
type RuleTriggerType string

const (
	RuleTriggerAmountExceeds      RuleTriggerType = "amount_exceeds"
	RuleTriggerCategoryRestricted RuleTriggerType = "category_restricted"
	RuleTriggerTimeWindow         RuleTriggerType = "time_window"
	RuleTriggerVelocity           RuleTriggerType = "velocity"
)

var validRuleTriggerTypes = []RuleTriggerType{
	RuleTriggerAmountExceeds,
	RuleTriggerCategoryRestricted,
	RuleTriggerTimeWindow,
	RuleTriggerVelocity,
}

// IsValid reports whether the value matches the canonical trigger enum.
func (t RuleTriggerType) IsValid() bool {
	for _, candidate := range validRuleTriggerTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseRuleTriggerType converts raw input into RuleTriggerType.
func ParseRuleTriggerType(value string) (RuleTriggerType, error) {
	for _, candidate := range validRuleTriggerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule trigger type %q", value)
}
