package enums

import "fmt"

// RuleAction is the consequence a triggered spending rule demands.
type RuleAction string

const (
	RuleActionBlock           RuleAction = "block"
	RuleActionRequireApproval RuleAction = "require_approval"
	RuleActionWarn            RuleAction = "warn"
)

var validRuleActions = []RuleAction{
	RuleActionBlock,
	RuleActionRequireApproval,
	RuleActionWarn,
}

// Severity orders actions for net-action reduction: block dominates
// require_approval, which dominates warn.
func (a RuleAction) Severity() int {
	switch a {
	case RuleActionBlock:
		return 3
	case RuleActionRequireApproval:
		return 2
	case RuleActionWarn:
		return 1
	}
	return 0
}

// IsValid reports whether the value matches the canonical action enum.
func (a RuleAction) IsValid() bool {
	for _, candidate := range validRuleActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseRuleAction converts raw input into RuleAction.
func ParseRuleAction(value string) (RuleAction, error) {
	for _, candidate := range validRuleActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule action %q", value)
}
