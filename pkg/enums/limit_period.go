package enums

import "fmt"

// LimitPeriod is the recurring accounting window a spending limit covers.
type LimitPeriod string

const (
	LimitPeriodDaily    LimitPeriod = "daily"
	LimitPeriodWeekly   LimitPeriod = "weekly"
	LimitPeriodMonthly  LimitPeriod = "monthly"
	LimitPeriodPerOrder LimitPeriod = "per_order"
	LimitPeriodLifetime LimitPeriod = "lifetime"
)

var validLimitPeriods = []LimitPeriod{
	LimitPeriodDaily,
	LimitPeriodWeekly,
	LimitPeriodMonthly,
	LimitPeriodPerOrder,
	LimitPeriodLifetime,
}

// IsValid reports whether the value matches the canonical period enum.
func (p LimitPeriod) IsValid() bool {
	for _, candidate := range validLimitPeriods {
		if candidate == p {
			return true
		}
	}
	return false
}

// Recurring reports whether the period ever rolls over. Per-order limits are
// checked against each purchase in isolation and lifetime limits never reset.
func (p LimitPeriod) Recurring() bool {
	switch p {
	case LimitPeriodDaily, LimitPeriodWeekly, LimitPeriodMonthly:
		return true
	}
	return false
}

// ParseLimitPeriod converts raw input into LimitPeriod.
func ParseLimitPeriod(value string) (LimitPeriod, error) {
	for _, candidate := range validLimitPeriods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid limit period %q", value)
}
