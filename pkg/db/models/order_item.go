package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots one book at purchase time. UnitPrice is copied from the
// book when the order is created so later price edits never alter history.
type OrderItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	BookID    uuid.UUID `gorm:"column:book_id;type:uuid;not null"`
	Title     string    `gorm:"column:title;type:text;not null"`
	Qty       int       `gorm:"column:qty;not null;default:1"`
	UnitPrice int64     `gorm:"column:unit_price;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
