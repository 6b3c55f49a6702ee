package enums

import "fmt"

// ApprovalStatus tracks an approval request through its state machine.
type ApprovalStatus string

const (
	ApprovalStatusPending       ApprovalStatus = "pending"
	ApprovalStatusInReview      ApprovalStatus = "in_review"
	ApprovalStatusApproved      ApprovalStatus = "approved"
	ApprovalStatusRejected      ApprovalStatus = "rejected"
	ApprovalStatusEscalated     ApprovalStatus = "escalated"
	ApprovalStatusInfoRequested ApprovalStatus = "info_requested"
)

var validApprovalStatuses = []ApprovalStatus{
	ApprovalStatusPending,
	ApprovalStatusInReview,
	ApprovalStatusApproved,
	ApprovalStatusRejected,
	ApprovalStatusEscalated,
	ApprovalStatusInfoRequested,
}

// IsTerminal reports whether no further actions may change the request.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// IsValid reports whether the value matches the canonical status enum.
func (s ApprovalStatus) IsValid() bool {
	for _, candidate := range validApprovalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseApprovalStatus converts raw input into ApprovalStatus.
func ParseApprovalStatus(value string) (ApprovalStatus, error) {
	for _, candidate := range validApprovalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid approval status %q", value)
}
