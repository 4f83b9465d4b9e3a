package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/enums"
	"github.com/afribook/afribook-backend/pkg/types"
)

// Order represents one seller's portion of a purchase.
// Invariants: TotalAmount == Subtotal + DeliveryFee and
// Commission + SellerAmount == Subtotal.
type Order struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string                 `gorm:"column:order_number;type:text;not null;uniqueIndex"`
	BuyerID         uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID        uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;index"`
	Status          enums.OrderStatus      `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Subtotal        int64                  `gorm:"column:subtotal;not null"`
	Commission      int64                  `gorm:"column:commission;not null"`
	SellerAmount    int64                  `gorm:"column:seller_amount;not null"`
	DeliveryFee     int64                  `gorm:"column:delivery_fee;not null;default:0"`
	TotalAmount     int64                  `gorm:"column:total_amount;not null"`
	Currency        enums.Currency         `gorm:"column:currency;type:text;not null;default:'XOF'"`
	DeliveryType    enums.DeliveryType     `gorm:"column:delivery_type;type:delivery_type;not null;default:'pickup'"`
	DeliveryAddress *types.DeliveryAddress `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	PaidAt          *time.Time             `gorm:"column:paid_at"`
	ShippedAt       *time.Time             `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time             `gorm:"column:delivered_at"`
	CancelledAt     *time.Time             `gorm:"column:cancelled_at"`
	Items           []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Invoice         *Invoice               `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
