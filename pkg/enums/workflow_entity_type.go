package enums

import "fmt"

// WorkflowEntityType is the kind of purchase entity a workflow can govern.
type WorkflowEntityType string

const (
	WorkflowEntityTypeOrder WorkflowEntityType = "order"
	WorkflowEntityTypeQuote WorkflowEntityType = "quote"
)

var validWorkflowEntityTypes = []WorkflowEntityType{
	WorkflowEntityTypeOrder,
	WorkflowEntityTypeQuote,
}

// IsValid reports whether the value matches the canonical entity enum.
func (t WorkflowEntityType) IsValid() bool {
	for _, candidate := range validWorkflowEntityTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWorkflowEntityType converts raw input into WorkflowEntityType.
func ParseWorkflowEntityType(value string) (WorkflowEntityType, error) {
	for _, candidate := range validWorkflowEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid workflow entity type %q", value)
}
