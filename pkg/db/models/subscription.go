package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/enums"
)

// Subscription grants a user streaming access to the audiobook catalog for a
// billing period. Activation is driven by settled payment, never by intent.
type Subscription struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Status      enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'pending'"`
	Plan        string                   `gorm:"column:plan;type:text;not null"`
	Amount      int64                    `gorm:"column:amount;not null"`
	Currency    enums.Currency           `gorm:"column:currency;type:text;not null;default:'XOF'"`
	PeriodStart *time.Time               `gorm:"column:period_start"`
	PeriodEnd   *time.Time               `gorm:"column:period_end"`
	CancelledAt *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
