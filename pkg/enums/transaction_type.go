package enums

import "fmt"

// TransactionType maps to the spending_transaction_type_enum enum in Postgres.
type TransactionType string

const (
	TransactionTypeOrder      TransactionType = "order"
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypeRefund     TransactionType = "refund"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeOrder,
	TransactionTypePayment,
	TransactionTypeAdjustment,
	TransactionTypeRefund,
}

// IsValid reports whether the value matches the canonical transaction enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
