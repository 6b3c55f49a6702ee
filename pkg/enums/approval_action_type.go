package enums

import "fmt"

// ApprovalActionType is a single actor move against an approval request.
type ApprovalActionType string

const (
	ApprovalActionApprove     ApprovalActionType = "approve"
	ApprovalActionReject      ApprovalActionType = "reject"
	ApprovalActionDelegate    ApprovalActionType = "delegate"
	ApprovalActionEscalate    ApprovalActionType = "escalate"
	ApprovalActionRequestInfo ApprovalActionType = "request_info"
	ApprovalActionRespond     ApprovalActionType = "respond"
	ApprovalActionComment     ApprovalActionType = "comment"
)

var validApprovalActionTypes = []ApprovalActionType{
	ApprovalActionApprove,
	ApprovalActionReject,
	ApprovalActionDelegate,
	ApprovalActionEscalate,
	ApprovalActionRequestInfo,
	ApprovalActionRespond,
	ApprovalActionComment,
}

// IsValid reports whether the value matches the canonical action enum.
func (a ApprovalActionType) IsValid() bool {
	for _, candidate := range validApprovalActionTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseApprovalActionType converts raw input into ApprovalActionType.
func ParseApprovalActionType(value string) (ApprovalActionType, error) {
	for _, candidate := range validApprovalActionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid approval action type %q", value)
}
