package enums

import "fmt"

// AlertType classifies spending alerts raised against a limit.
type AlertType string

const (
	AlertTypeWarningThreshold AlertType = "warning_threshold"
	AlertTypeLimitExceeded    AlertType = "limit_exceeded"
)

var validAlertTypes = []AlertType{
	AlertTypeWarningThreshold,
	AlertTypeLimitExceeded,
}

// IsValid reports whether the value matches the canonical alert enum.
func (t AlertType) IsValid() bool {
	for _, candidate := range validAlertTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAlertType converts raw input into AlertType.
func ParseAlertType(value string) (AlertType, error) {
	for _, candidate := range validAlertTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert type %q", value)
}
