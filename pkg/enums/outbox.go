package enums

import "fmt"

// OutboxEventType names the domain events the engine publishes.
type OutboxEventType string

const (
	OutboxEventApprovalRequested   OutboxEventType = "approval.requested"
	OutboxEventApprovalApproved    OutboxEventType = "approval.approved"
	OutboxEventApprovalRejected    OutboxEventType = "approval.rejected"
	OutboxEventApprovalEscalated   OutboxEventType = "approval.escalated"
	OutboxEventLimitThreshold      OutboxEventType = "limit.threshold_reached"
	OutboxEventTransactionRecorded OutboxEventType = "transaction.recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventApprovalRequested,
	OutboxEventApprovalApproved,
	OutboxEventApprovalRejected,
	OutboxEventApprovalEscalated,
	OutboxEventLimitThreshold,
	OutboxEventTransactionRecorded,
}

// IsValid reports whether the value matches the canonical event enum.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateApprovalRequest     OutboxAggregateType = "approval_request"
	OutboxAggregateSpendingLimit       OutboxAggregateType = "spending_limit"
	OutboxAggregateSpendingTransaction OutboxAggregateType = "spending_transaction"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	OutboxAggregateApprovalRequest,
	OutboxAggregateSpendingLimit,
	OutboxAggregateSpendingTransaction,
}

// IsValid reports whether the value matches the canonical aggregate enum.
func (t OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}
