package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/enums"
)

// Invoice is created exactly once per successfully paid order.
type Invoice struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID      `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	InvoiceNumber string         `gorm:"column:invoice_number;type:text;not null;uniqueIndex"`
	Amount        int64          `gorm:"column:amount;not null"`
	Currency      enums.Currency `gorm:"column:currency;type:text;not null;default:'XOF'"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
}
