package webhooks

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afribook/afribook-backend/internal/payments"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/metrics"
)

type fakeWallets struct {
	transactions map[string]*models.Transaction
	reconciled   []string
}

func (f *fakeWallets) FindByProviderRef(ctx context.Context, ref string) (*models.Transaction, error) {
	transaction, ok := f.transactions[ref]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown provider reference")
	}
	return transaction, nil
}

func (f *fakeWallets) ReconcilePending(ctx context.Context, ref string, status enums.PaymentStatus) (*models.Transaction, error) {
	f.reconciled = append(f.reconciled, ref)
	return f.transactions[ref], nil
}

type fakeOrderResolver struct {
	resolved []string
}

func (f *fakeOrderResolver) ResolvePayment(ctx context.Context, ref string, status enums.PaymentStatus) (*models.Order, error) {
	f.resolved = append(f.resolved, ref)
	return &models.Order{}, nil
}

type fakeSubscriptionResolver struct {
	resolved []string
}

func (f *fakeSubscriptionResolver) ResolvePayment(ctx context.Context, ref string, status enums.PaymentStatus) (*models.Subscription, error) {
	f.resolved = append(f.resolved, ref)
	return &models.Subscription{}, nil
}

type webhookFixture struct {
	svc           Service
	wallets       *fakeWallets
	orders        *fakeOrderResolver
	subscriptions *fakeSubscriptionResolver
}

func newWebhookFixture(t *testing.T, transactions map[string]*models.Transaction) *webhookFixture {
	t.Helper()

	wallets := &fakeWallets{transactions: transactions}
	orders := &fakeOrderResolver{}
	subscriptions := &fakeSubscriptionResolver{}

	svc, err := NewService(wallets, orders, subscriptions,
		logger.New(logger.Options{ServiceName: "webhooks-test"}),
		metrics.NewSettlementMetrics(nil))
	require.NoError(t, err)

	return &webhookFixture{svc: svc, wallets: wallets, orders: orders, subscriptions: subscriptions}
}

func purchaseTransaction(ref string) *models.Transaction {
	orderID := uuid.New()
	return &models.Transaction{
		Type:        enums.TransactionTypePurchase,
		Status:      enums.TransactionStatusPending,
		ProviderRef: &ref,
		OrderID:     &orderID,
	}
}

func TestHandleEventUnknownReferenceIsBenign(t *testing.T) {
	f := newWebhookFixture(t, nil)

	err := f.svc.HandleEvent(context.Background(), &payments.WebhookEvent{
		Provider:    enums.PaymentProviderMTN,
		ProviderRef: "never-issued",
		Status:      enums.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	assert.Empty(t, f.orders.resolved)
	assert.Empty(t, f.wallets.reconciled)
}

func TestHandleEventRoutesPurchaseToOrders(t *testing.T) {
	f := newWebhookFixture(t, map[string]*models.Transaction{
		"p-ref": purchaseTransaction("p-ref"),
	})

	err := f.svc.HandleEvent(context.Background(), &payments.WebhookEvent{
		Provider:    enums.PaymentProviderMTN,
		ProviderRef: "p-ref",
		Status:      enums.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-ref"}, f.orders.resolved)
	assert.Empty(t, f.wallets.reconciled)
	assert.Empty(t, f.subscriptions.resolved)
}

func TestHandleEventRoutesTransfersToWallet(t *testing.T) {
	ref := "d-ref"
	f := newWebhookFixture(t, map[string]*models.Transaction{
		ref: {Type: enums.TransactionTypeDeposit, Status: enums.TransactionStatusPending, ProviderRef: &ref},
	})

	err := f.svc.HandleEvent(context.Background(), &payments.WebhookEvent{
		Provider:    enums.PaymentProviderMoov,
		ProviderRef: ref,
		Status:      enums.PaymentStatusFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ref}, f.wallets.reconciled)
	assert.Empty(t, f.orders.resolved)
}

func TestHandleEventRoutesSubscriptions(t *testing.T) {
	ref := "s-ref"
	subscriptionID := uuid.New()
	f := newWebhookFixture(t, map[string]*models.Transaction{
		ref: {
			Type:           enums.TransactionTypeSubscription,
			Status:         enums.TransactionStatusPending,
			ProviderRef:    &ref,
			SubscriptionID: &subscriptionID,
		},
	})

	err := f.svc.HandleEvent(context.Background(), &payments.WebhookEvent{
		Provider:    enums.PaymentProviderMTN,
		ProviderRef: ref,
		Status:      enums.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ref}, f.subscriptions.resolved)
}

func TestHandleEventIgnoresUnroutableTypes(t *testing.T) {
	ref := "sale-ref"
	f := newWebhookFixture(t, map[string]*models.Transaction{
		ref: {Type: enums.TransactionTypeSale, Status: enums.TransactionStatusCompleted, ProviderRef: &ref},
	})

	err := f.svc.HandleEvent(context.Background(), &payments.WebhookEvent{
		Provider:    enums.PaymentProviderMTN,
		ProviderRef: ref,
		Status:      enums.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	assert.Empty(t, f.wallets.reconciled)
	assert.Empty(t, f.orders.resolved)
}
