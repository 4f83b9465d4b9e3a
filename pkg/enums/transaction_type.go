package enums

import "fmt"

// TransactionType classifies wallet ledger entries.
type TransactionType string

const (
	TransactionTypeDeposit      TransactionType = "deposit"
	TransactionTypeWithdrawal   TransactionType = "withdrawal"
	TransactionTypePurchase     TransactionType = "purchase"
	TransactionTypeSale         TransactionType = "sale"
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeRefund       TransactionType = "refund"
	TransactionTypeCommission   TransactionType = "commission"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdrawal,
	TransactionTypePurchase,
	TransactionTypeSale,
	TransactionTypeSubscription,
	TransactionTypeRefund,
	TransactionTypeCommission,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsCredit reports whether a completed transaction of this type increases the wallet balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeSale, TransactionTypeRefund, TransactionTypeCommission:
		return true
	default:
		return false
	}
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
