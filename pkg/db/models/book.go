package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/enums"
)

// Book is a physical book listing. The settlement core reads price, seller
// and status, and mutates only the status column.
type Book struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID   uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;index"`
	Title      string           `gorm:"column:title;type:text;not null"`
	Author     string           `gorm:"column:author;type:text;not null"`
	Price      int64            `gorm:"column:price;not null"`
	Currency   enums.Currency   `gorm:"column:currency;type:text;not null;default:'XOF'"`
	Status     enums.BookStatus `gorm:"column:status;type:book_status;not null;default:'active';index"`
	SoldAt     *time.Time       `gorm:"column:sold_at"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
