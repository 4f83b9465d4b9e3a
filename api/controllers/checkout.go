package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/api/middleware"
	"github.com/afribook/afribook-backend/api/responses"
	"github.com/afribook/afribook-backend/api/validators"
	checkoutsvc "github.com/afribook/afribook-backend/internal/checkout"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/types"
)

// Checkout submits a cart of book ids for purchase. Each seller's slice of
// the cart settles independently; the response reports both the orders that
// went through and the sellers that failed.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider"))
			return
		}
		deliveryType, err := enums.ParseDeliveryType(payload.DeliveryType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery type"))
			return
		}

		result, err := svc.Checkout(r.Context(), checkoutsvc.CheckoutInput{
			BuyerID:         buyerID,
			BookIDs:         payload.BookIDs,
			Provider:        provider,
			PayerPhone:      payload.Phone,
			DeliveryType:    deliveryType,
			DeliveryAddress: payload.DeliveryAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.AllFailed() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodePaymentFailed, "no order could be settled").
				WithDetails(map[string]any{"failures": result.Failures}))
			return
		}

		responses.WriteSuccess(w, newCheckoutResponse(result))
	}
}

type checkoutRequest struct {
	BookIDs         []uuid.UUID            `json:"book_ids" validate:"required,min=1"`
	Provider        string                 `json:"provider" validate:"required"`
	Phone           string                 `json:"phone" validate:"required"`
	DeliveryType    string                 `json:"delivery_type" validate:"required"`
	DeliveryAddress *types.DeliveryAddress `json:"delivery_address,omitempty"`
}

type checkoutResponse struct {
	Orders         []orderResponse            `json:"orders"`
	Failures       []checkoutsvc.OrderFailure `json:"failures,omitempty"`
	DroppedBookIDs []uuid.UUID                `json:"dropped_book_ids,omitempty"`
}

func newCheckoutResponse(result *checkoutsvc.CheckoutResult) checkoutResponse {
	resp := checkoutResponse{
		Orders:         make([]orderResponse, 0, len(result.Orders)),
		Failures:       result.Failures,
		DroppedBookIDs: result.DroppedBookIDs,
	}
	for i := range result.Orders {
		resp.Orders = append(resp.Orders, newOrderResponse(&result.Orders[i]))
	}
	return resp
}

type orderResponse struct {
	ID              uuid.UUID              `json:"id"`
	OrderNumber     string                 `json:"order_number"`
	BuyerID         uuid.UUID              `json:"buyer_id"`
	SellerID        uuid.UUID              `json:"seller_id"`
	Status          string                 `json:"status"`
	Subtotal        int64                  `json:"subtotal"`
	Commission      int64                  `json:"commission"`
	SellerAmount    int64                  `json:"seller_amount"`
	DeliveryFee     int64                  `json:"delivery_fee"`
	TotalAmount     int64                  `json:"total_amount"`
	Currency        string                 `json:"currency"`
	DeliveryType    string                 `json:"delivery_type"`
	DeliveryAddress *types.DeliveryAddress `json:"delivery_address,omitempty"`
	Items           []orderItemResponse    `json:"items,omitempty"`
	InvoiceNumber   string                 `json:"invoice_number,omitempty"`
}

type orderItemResponse struct {
	BookID    uuid.UUID `json:"book_id"`
	Title     string    `json:"title"`
	Qty       int       `json:"qty"`
	UnitPrice int64     `json:"unit_price"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		BuyerID:         order.BuyerID,
		SellerID:        order.SellerID,
		Status:          order.Status.String(),
		Subtotal:        order.Subtotal,
		Commission:      order.Commission,
		SellerAmount:    order.SellerAmount,
		DeliveryFee:     order.DeliveryFee,
		TotalAmount:     order.TotalAmount,
		Currency:        string(order.Currency),
		DeliveryType:    order.DeliveryType.String(),
		DeliveryAddress: order.DeliveryAddress,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			BookID:    item.BookID,
			Title:     item.Title,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
		})
	}
	if order.Invoice != nil {
		resp.InvoiceNumber = order.Invoice.InvoiceNumber
	}
	return resp
}
