package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/enums"
)

// Transaction is an append-only wallet ledger entry. ProviderRef is unique so
// a provider callback can reconcile the row idempotently; once the status is
// terminal the row is never mutated again.
type Transaction struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID       uuid.UUID               `gorm:"column:wallet_id;type:uuid;not null;index"`
	Type           enums.TransactionType   `gorm:"column:type;type:transaction_type;not null"`
	Status         enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	Amount         int64                   `gorm:"column:amount;not null"`
	Fee            int64                   `gorm:"column:fee;not null;default:0"`
	NetAmount      int64                   `gorm:"column:net_amount;not null"`
	Currency       enums.Currency          `gorm:"column:currency;type:text;not null;default:'XOF'"`
	Provider       enums.PaymentProvider   `gorm:"column:provider;type:text;not null"`
	ProviderRef    *string                 `gorm:"column:provider_ref;type:text;uniqueIndex"`
	OrderID        *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	SubscriptionID *uuid.UUID              `gorm:"column:subscription_id;type:uuid"`
	CompletedAt    *time.Time              `gorm:"column:completed_at"`
	FailedAt       *time.Time              `gorm:"column:failed_at"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
