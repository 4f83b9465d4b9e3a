package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/enums"
)

// Wallet holds one user's cached balance. The balance is derived state:
// it must always equal the sum of completed transactions affecting it and
// is only ever mutated alongside a ledger row.
type Wallet struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID      `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Balance   int64          `gorm:"column:balance;not null;default:0"`
	Currency  enums.Currency `gorm:"column:currency;type:text;not null;default:'XOF'"`
	Active    bool           `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
