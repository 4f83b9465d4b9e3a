package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afribook/afribook-backend/internal/notifications"
	"github.com/afribook/afribook-backend/internal/payments"
	"github.com/afribook/afribook-backend/internal/wallet"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayResolver interface {
	Gateway(provider enums.PaymentProvider) (payments.Gateway, error)
}

type notifier interface {
	Emit(ctx context.Context, input notifications.CreateInput)
}

// Plan prices a subscription tier and its billing period.
type Plan struct {
	Amount int64
	Period time.Duration
}

// DefaultPlans are the audiobook access tiers.
var DefaultPlans = map[string]Plan{
	"monthly": {Amount: 2000, Period: 30 * 24 * time.Hour},
	"yearly":  {Amount: 20000, Period: 365 * 24 * time.Hour},
}

// SubscribeInput starts a paid subscription.
type SubscribeInput struct {
	UserID   uuid.UUID
	Plan     string
	Provider enums.PaymentProvider
	Phone    string
}

// Service defines subscription lifecycle operations.
type Service interface {
	Subscribe(ctx context.Context, input SubscribeInput) (*models.Subscription, error)
	ResolvePayment(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Subscription, error)
	Active(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	Cancel(ctx context.Context, id, userID uuid.UUID) (*models.Subscription, error)
}

type service struct {
	repo     Repository
	wallets  wallet.Repository
	tx       txRunner
	gateways gatewayResolver
	notify   notifier
	logger   *logger.Logger
	plans    map[string]Plan
	currency enums.Currency
}

// NewService builds a subscriptions service with the required dependencies.
func NewService(repo Repository, wallets wallet.Repository, tx txRunner, gateways gatewayResolver, notify notifier, logg *logger.Logger, plans map[string]Plan, currency enums.Currency) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway resolver required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(plans) == 0 {
		plans = DefaultPlans
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", currency)
	}
	return &service{
		repo:     repo,
		wallets:  wallets,
		tx:       tx,
		gateways: gateways,
		notify:   notify,
		logger:   logg,
		plans:    plans,
		currency: currency,
	}, nil
}

// Subscribe charges the plan price over mobile money and opens a PENDING
// subscription. Access is granted only when the payment reconciles.
func (s *service) Subscribe(ctx context.Context, input SubscribeInput) (*models.Subscription, error) {
	plan, ok := s.plans[input.Plan]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown subscription plan").
			WithDetails(map[string]any{"plan": input.Plan})
	}
	gw, err := s.gateways.Gateway(input.Provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment provider")
	}
	if active, err := s.Active(ctx, input.UserID); err == nil && active != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active subscription already exists")
	}

	subscription, err := s.repo.Create(ctx, &models.Subscription{
		UserID:   input.UserID,
		Status:   enums.SubscriptionStatusPending,
		Plan:     input.Plan,
		Amount:   plan.Amount,
		Currency: s.currency,
	})
	if err != nil {
		return nil, err
	}

	charge, err := gw.Charge(ctx, payments.ChargeRequest{
		Amount:      plan.Amount,
		Currency:    s.currency,
		PayerPhone:  input.Phone,
		ExternalRef: subscription.ID.String(),
		Description: "AfriBook " + input.Plan + " subscription",
	})
	if err != nil {
		s.cancelUnpaid(ctx, subscription.ID)
		return nil, err
	}

	if err := s.recordPendingCharge(ctx, subscription, charge.ProviderRef, input.Provider); err != nil {
		return nil, err
	}

	if charge.Status.IsTerminal() {
		return s.ResolvePayment(ctx, charge.ProviderRef, charge.Status)
	}
	return subscription, nil
}

// ResolvePayment activates or cancels a subscription when its charge reaches
// a terminal state. Idempotent: a subscription already out of PENDING is left
// alone.
func (s *service) ResolvePayment(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Subscription, error) {
	transaction, err := s.wallets.FindTransactionByProviderRef(ctx, providerRef)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown provider reference")
	}
	if err != nil {
		return nil, err
	}
	if transaction.SubscriptionID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reference is not linked to a subscription")
	}
	subscriptionID := *transaction.SubscriptionID

	if !status.IsTerminal() {
		return s.repo.FindByID(ctx, subscriptionID)
	}

	var resolved *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		subscription, err := repo.FindByID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription.Status != enums.SubscriptionStatusPending {
			resolved = subscription
			return nil
		}

		now := time.Now().UTC()
		walletRepo := s.wallets.WithTx(tx)

		if status == enums.PaymentStatusSucceeded {
			plan, ok := s.plans[subscription.Plan]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInternal, "subscription references an unknown plan")
			}
			periodEnd := now.Add(plan.Period)
			if err := repo.Update(ctx, subscription.ID, map[string]any{
				"status":       enums.SubscriptionStatusActive,
				"period_start": now,
				"period_end":   periodEnd,
			}); err != nil {
				return err
			}
			if err := walletRepo.UpdateTransaction(ctx, transaction.ID, map[string]any{
				"status":       enums.TransactionStatusCompleted,
				"completed_at": now,
			}); err != nil {
				return err
			}
			subscription.Status = enums.SubscriptionStatusActive
			subscription.PeriodStart = &now
			subscription.PeriodEnd = &periodEnd
			resolved = subscription
			return nil
		}

		if err := repo.Update(ctx, subscription.ID, map[string]any{
			"status":       enums.SubscriptionStatusCancelled,
			"cancelled_at": now,
		}); err != nil {
			return err
		}
		if err := walletRepo.UpdateTransaction(ctx, transaction.ID, map[string]any{
			"status":    enums.TransactionStatusFailed,
			"failed_at": now,
		}); err != nil {
			return err
		}
		subscription.Status = enums.SubscriptionStatusCancelled
		subscription.CancelledAt = &now
		resolved = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resolved != nil && resolved.Status == enums.SubscriptionStatusActive {
		s.notify.Emit(ctx, notifications.CreateInput{
			UserID:  resolved.UserID,
			Type:    enums.NotificationTypeSubscriptionActive,
			Title:   "Subscription active",
			Message: fmt.Sprintf("Your %s audiobook subscription is now active.", resolved.Plan),
		})
	}
	return resolved, nil
}

func (s *service) Active(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	subscription, err := s.repo.FindActiveByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	}
	if err != nil {
		return nil, err
	}
	if subscription.PeriodEnd != nil && subscription.PeriodEnd.Before(time.Now().UTC()) {
		if err := s.repo.Update(ctx, subscription.ID, map[string]any{
			"status": enums.SubscriptionStatusExpired,
		}); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	}
	return subscription, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) Cancel(ctx context.Context, id, userID uuid.UUID) (*models.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if err != nil {
		return nil, err
	}
	if subscription.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another user")
	}
	if subscription.Status != enums.SubscriptionStatusActive && subscription.Status != enums.SubscriptionStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot cancel a %s subscription", subscription.Status))
	}

	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, map[string]any{
		"status":       enums.SubscriptionStatusCancelled,
		"cancelled_at": now,
	}); err != nil {
		return nil, err
	}
	subscription.Status = enums.SubscriptionStatusCancelled
	subscription.CancelledAt = &now
	return subscription, nil
}

func (s *service) recordPendingCharge(ctx context.Context, subscription *models.Subscription, providerRef string, provider enums.PaymentProvider) error {
	userWallet, err := s.ensureWallet(ctx, subscription.UserID)
	if err != nil {
		return err
	}
	_, err = s.wallets.CreateTransaction(ctx, &models.Transaction{
		WalletID:       userWallet.ID,
		Type:           enums.TransactionTypeSubscription,
		Status:         enums.TransactionStatusPending,
		Amount:         subscription.Amount,
		NetAmount:      subscription.Amount,
		Currency:       subscription.Currency,
		Provider:       provider,
		ProviderRef:    &providerRef,
		SubscriptionID: &subscription.ID,
	})
	return err
}

func (s *service) ensureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	existing, err := s.wallets.FindWalletByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.wallets.CreateWallet(ctx, &models.Wallet{
		UserID:   userID,
		Currency: s.currency,
		Active:   true,
	})
}

func (s *service) cancelUnpaid(ctx context.Context, id uuid.UUID) {
	err := s.repo.Update(ctx, id, map[string]any{
		"status":       enums.SubscriptionStatusCancelled,
		"cancelled_at": time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error(ctx, "cancelling unpaid subscription", err)
	}
}
