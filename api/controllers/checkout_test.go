package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afribook/afribook-backend/api/middleware"
	checkoutsvc "github.com/afribook/afribook-backend/internal/checkout"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

type fakeCheckoutService struct {
	result *checkoutsvc.CheckoutResult
	err    error
	input  checkoutsvc.CheckoutInput
}

func (f *fakeCheckoutService) Checkout(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.CheckoutResult, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCheckoutService) ResolvePayment(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Order, error) {
	return nil, nil
}

func checkoutRequestWithUser(t *testing.T, body string, userID uuid.UUID) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestCheckoutReturnsOrdersAndFailures(t *testing.T) {
	buyerID := uuid.New()
	bookID := uuid.New()
	failedSeller := uuid.New()

	svc := &fakeCheckoutService{result: &checkoutsvc.CheckoutResult{
		Orders: []models.Order{{
			ID:           uuid.New(),
			OrderNumber:  "AB-20260901-TEST",
			BuyerID:      buyerID,
			Status:       enums.OrderStatusPaid,
			Subtotal:     10000,
			Commission:   500,
			SellerAmount: 9500,
			TotalAmount:  11500,
			Currency:     enums.CurrencyXOF,
			DeliveryType: enums.DeliveryTypeShipping,
		}},
		Failures: []checkoutsvc.OrderFailure{{
			SellerID: failedSeller,
			Code:     pkgerrors.CodePaymentFailed,
			Reason:   "charge declined",
		}},
	}}

	body := `{"book_ids":["` + bookID.String() + `"],"provider":"mtn_momo","phone":"+22670000001","delivery_type":"pickup"}`
	w := httptest.NewRecorder()
	Checkout(svc, logger.New(logger.Options{ServiceName: "checkout-test"})).
		ServeHTTP(w, checkoutRequestWithUser(t, body, buyerID))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, buyerID, svc.input.BuyerID)
	assert.Equal(t, enums.PaymentProviderMTN, svc.input.Provider)
	assert.Equal(t, enums.DeliveryTypePickup, svc.input.DeliveryType)

	var envelope struct {
		Data checkoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Orders, 1)
	assert.Equal(t, int64(500), envelope.Data.Orders[0].Commission)
	require.Len(t, envelope.Data.Failures, 1)
	assert.Equal(t, failedSeller, envelope.Data.Failures[0].SellerID)
}

func TestCheckoutAllFailedIsHardError(t *testing.T) {
	buyerID := uuid.New()
	svc := &fakeCheckoutService{result: &checkoutsvc.CheckoutResult{
		Failures: []checkoutsvc.OrderFailure{{
			SellerID: uuid.New(),
			Code:     pkgerrors.CodePaymentFailed,
			Reason:   "charge declined",
		}},
	}}

	body := `{"book_ids":["` + uuid.NewString() + `"],"provider":"moov_money","phone":"+22670000002","delivery_type":"pickup"}`
	w := httptest.NewRecorder()
	Checkout(svc, logger.New(logger.Options{ServiceName: "checkout-test"})).
		ServeHTTP(w, checkoutRequestWithUser(t, body, buyerID))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCheckoutRejectsUnknownProvider(t *testing.T) {
	svc := &fakeCheckoutService{}
	body := `{"book_ids":["` + uuid.NewString() + `"],"provider":"orange_money","phone":"+22670000003","delivery_type":"pickup"}`
	w := httptest.NewRecorder()
	Checkout(svc, logger.New(logger.Options{ServiceName: "checkout-test"})).
		ServeHTTP(w, checkoutRequestWithUser(t, body, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	svc := &fakeCheckoutService{}
	body := `{"book_ids":[],"provider":"mtn_momo","phone":"+22670000004","delivery_type":"pickup"}`
	w := httptest.NewRecorder()
	Checkout(svc, logger.New(logger.Options{ServiceName: "checkout-test"})).
		ServeHTTP(w, checkoutRequestWithUser(t, body, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutRequiresUserContext(t *testing.T) {
	svc := &fakeCheckoutService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	Checkout(svc, logger.New(logger.Options{ServiceName: "checkout-test"})).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
