package enums

import "fmt"

// SpendingEntityType identifies the scope a limit or transaction applies to.
type SpendingEntityType string

const (
	SpendingEntityTypeCompany    SpendingEntityType = "company"
	SpendingEntityTypeDepartment SpendingEntityType = "department"
	SpendingEntityTypeEmployee   SpendingEntityType = "employee"
)

var validSpendingEntityTypes = []SpendingEntityType{
	SpendingEntityTypeCompany,
	SpendingEntityTypeDepartment,
	SpendingEntityTypeEmployee,
}

// IsValid reports whether the value matches the canonical entity type enum.
func (t SpendingEntityType) IsValid() bool {
	for _, candidate := range validSpendingEntityTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseSpendingEntityType converts raw input into SpendingEntityType.
func ParseSpendingEntityType(value string) (SpendingEntityType, error) {
	for _, candidate := range validSpendingEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid spending entity type %q", value)
}
