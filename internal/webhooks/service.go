package webhooks

import (
	"context"
	"fmt"

	"github.com/afribook/afribook-backend/internal/payments"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/metrics"
)

type transactionFinder interface {
	FindByProviderRef(ctx context.Context, providerRef string) (*models.Transaction, error)
	ReconcilePending(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Transaction, error)
}

type orderResolver interface {
	ResolvePayment(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Order, error)
}

type subscriptionResolver interface {
	ResolvePayment(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Subscription, error)
}

// Service reconciles provider callbacks against pending payments.
type Service interface {
	HandleEvent(ctx context.Context, event *payments.WebhookEvent) error
}

type service struct {
	wallets       transactionFinder
	orders        orderResolver
	subscriptions subscriptionResolver
	logger        *logger.Logger
	metrics       *metrics.SettlementMetrics
}

// NewService builds the webhook reconciliation service.
func NewService(wallets transactionFinder, orders orderResolver, subscriptions subscriptionResolver, logg *logger.Logger, m *metrics.SettlementMetrics) (Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order resolver required")
	}
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription resolver required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		wallets:       wallets,
		orders:        orders,
		subscriptions: subscriptions,
		logger:        logg,
		metrics:       m,
	}, nil
}

// HandleEvent routes a normalized provider callback to the matching pending
// payment. Unknown references are acknowledged without error: providers
// retry webhooks for references this system never issued, such as test
// traffic. Safe to invoke concurrently and repeatedly for one reference.
func (s *service) HandleEvent(ctx context.Context, event *payments.WebhookEvent) error {
	ctx = s.logger.WithProviderRef(ctx, event.ProviderRef)

	transaction, err := s.wallets.FindByProviderRef(ctx, event.ProviderRef)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		s.logger.Warn(ctx, "webhook for unknown provider reference")
		s.metrics.IncWebhook(event.Provider.String(), "unknown_ref")
		return nil
	}
	if err != nil {
		s.metrics.IncWebhook(event.Provider.String(), "error")
		return err
	}

	switch transaction.Type {
	case enums.TransactionTypePurchase:
		_, err = s.orders.ResolvePayment(ctx, event.ProviderRef, event.Status)
	case enums.TransactionTypeSubscription:
		_, err = s.subscriptions.ResolvePayment(ctx, event.ProviderRef, event.Status)
	case enums.TransactionTypeDeposit, enums.TransactionTypeWithdrawal:
		_, err = s.wallets.ReconcilePending(ctx, event.ProviderRef, event.Status)
	default:
		s.logger.Warn(ctx, "webhook references a non-reconcilable transaction type")
		s.metrics.IncWebhook(event.Provider.String(), "unroutable")
		return nil
	}

	if err != nil {
		s.logger.Error(ctx, "webhook reconciliation failed", err)
		s.metrics.IncWebhook(event.Provider.String(), "error")
		return err
	}

	s.metrics.IncWebhook(event.Provider.String(), "reconciled")
	return nil
}
