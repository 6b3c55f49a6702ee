package enums

import "fmt"

// EmployeeRole is the role an employee holds inside a buying company.
type EmployeeRole string

const (
	EmployeeRoleEmployee EmployeeRole = "employee"
	EmployeeRoleManager  EmployeeRole = "manager"
	EmployeeRoleFinance  EmployeeRole = "finance"
	EmployeeRoleAdmin    EmployeeRole = "admin"
)

var validEmployeeRoles = []EmployeeRole{
	EmployeeRoleEmployee,
	EmployeeRoleManager,
	EmployeeRoleFinance,
	EmployeeRoleAdmin,
}

// IsValid reports whether the value matches the canonical role enum.
func (r EmployeeRole) IsValid() bool {
	for _, candidate := range validEmployeeRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseEmployeeRole converts raw input into EmployeeRole.
func ParseEmployeeRole(value string) (EmployeeRole, error) {
	for _, candidate := range validEmployeeRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid employee role %q", value)
}
