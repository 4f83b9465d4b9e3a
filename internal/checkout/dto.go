package checkout

import (
	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/types"
)

// CheckoutInput is one buyer's purchase request across any number of sellers.
type CheckoutInput struct {
	BuyerID         uuid.UUID
	BookIDs         []uuid.UUID
	Provider        enums.PaymentProvider
	PayerPhone      string
	DeliveryType    enums.DeliveryType
	DeliveryAddress *types.DeliveryAddress
}

// SellerGroup is one seller's slice of the cart.
type SellerGroup struct {
	SellerID uuid.UUID
	Books    []models.Book
	Subtotal int64
}

// SplitResult is the outcome of grouping a cart by seller.
type SplitResult struct {
	Groups         []SellerGroup
	DroppedBookIDs []uuid.UUID
}

// OrderFailure reports one seller sub-order that could not be settled.
type OrderFailure struct {
	SellerID uuid.UUID      `json:"seller_id"`
	Code     pkgerrors.Code `json:"code"`
	Reason   string         `json:"reason"`
}

// CheckoutResult aggregates per-seller outcomes. Orders holds both settled
// (PAID) and still-pending sub-orders; Failures lists sellers whose payment
// failed. Partial success is expected, never all-or-nothing across sellers.
type CheckoutResult struct {
	Orders         []models.Order `json:"orders"`
	Failures       []OrderFailure `json:"failures"`
	DroppedBookIDs []uuid.UUID    `json:"dropped_book_ids"`
}

// AllFailed reports whether no sub-order was created at all.
func (r *CheckoutResult) AllFailed() bool {
	return len(r.Orders) == 0
}
