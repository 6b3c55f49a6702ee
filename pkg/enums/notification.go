package enums

import "fmt"

// NotificationType classifies employee-facing notifications.
type NotificationType string

const (
	NotificationTypeApprovalNeeded    NotificationType = "approval_needed"
	NotificationTypeApprovalApproved  NotificationType = "approval_approved"
	NotificationTypeApprovalRejected  NotificationType = "approval_rejected"
	NotificationTypeApprovalEscalated NotificationType = "approval_escalated"
	NotificationTypeInfoRequested     NotificationType = "info_requested"
	NotificationTypeLimitWarning      NotificationType = "limit_warning"
	NotificationTypeLimitExceeded     NotificationType = "limit_exceeded"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeApprovalNeeded,
	NotificationTypeApprovalApproved,
	NotificationTypeApprovalRejected,
	NotificationTypeApprovalEscalated,
	NotificationTypeInfoRequested,
	NotificationTypeLimitWarning,
	NotificationTypeLimitExceeded,
}

// IsValid reports whether the value matches the canonical notification enum.
func (t NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
