package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/afribook/afribook-backend/internal/notifications"
	"github.com/afribook/afribook-backend/internal/payments"
	"github.com/afribook/afribook-backend/internal/wallet"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

func setupSubscriptionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  plan TEXT NOT NULL,
  amount INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'XOF',
  period_start DATETIME,
  period_end DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  balance INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'XOF',
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount INTEGER NOT NULL,
  fee INTEGER NOT NULL DEFAULT 0,
  net_amount INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'XOF',
  provider TEXT,
  provider_ref TEXT UNIQUE,
  order_id TEXT,
  subscription_id TEXT,
  completed_at DATETIME,
  failed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, schema := range schemas {
		require.NoError(t, db.Exec(schema).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type scriptedGateway struct {
	outcomes  []payments.Result
	charges   []payments.ChargeRequest
	chargeErr error
}

func (g *scriptedGateway) Provider() enums.PaymentProvider { return enums.PaymentProviderMTN }

func (g *scriptedGateway) Charge(ctx context.Context, req payments.ChargeRequest) (*payments.Result, error) {
	g.charges = append(g.charges, req)
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	if len(g.outcomes) == 0 {
		return &payments.Result{ProviderRef: uuid.NewString(), Status: enums.PaymentStatusSucceeded}, nil
	}
	next := g.outcomes[0]
	g.outcomes = g.outcomes[1:]
	if next.ProviderRef == "" {
		next.ProviderRef = uuid.NewString()
	}
	return &next, nil
}

func (g *scriptedGateway) Payout(ctx context.Context, req payments.PayoutRequest) (*payments.Result, error) {
	return &payments.Result{ProviderRef: uuid.NewString(), Status: enums.PaymentStatusSucceeded}, nil
}

type fakeNotifier struct {
	emitted []notifications.CreateInput
}

func (f *fakeNotifier) Emit(ctx context.Context, input notifications.CreateInput) {
	f.emitted = append(f.emitted, input)
}

type subscriptionsFixture struct {
	db       *gorm.DB
	svc      Service
	repo     Repository
	wallets  wallet.Repository
	gateway  *scriptedGateway
	notifier *fakeNotifier
}

func newSubscriptionsFixture(t *testing.T) *subscriptionsFixture {
	t.Helper()

	db := setupSubscriptionsTestDB(t)
	gateway := &scriptedGateway{}
	notifier := &fakeNotifier{}

	resolver, err := payments.NewResolver(gateway)
	require.NoError(t, err)

	repo := NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	svc, err := NewService(repo, walletRepo, &gormTxRunner{db: db}, resolver, notifier,
		logger.New(logger.Options{ServiceName: "subscriptions-test"}), nil, enums.CurrencyXOF)
	require.NoError(t, err)

	return &subscriptionsFixture{
		db:       db,
		svc:      svc,
		repo:     repo,
		wallets:  walletRepo,
		gateway:  gateway,
		notifier: notifier,
	}
}

func TestSubscribeActivatesOnSyncSuccess(t *testing.T) {
	f := newSubscriptionsFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	subscription, err := f.svc.Subscribe(ctx, SubscribeInput{
		UserID:   userID,
		Plan:     "monthly",
		Provider: enums.PaymentProviderMTN,
		Phone:    "+22670000001",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, subscription.Status)
	require.NotNil(t, subscription.PeriodEnd)
	assert.WithinDuration(t, time.Now().UTC().Add(30*24*time.Hour), *subscription.PeriodEnd, time.Minute)

	require.Len(t, f.gateway.charges, 1)
	assert.Equal(t, int64(2000), f.gateway.charges[0].Amount)

	require.Len(t, f.notifier.emitted, 1)
	assert.Equal(t, enums.NotificationTypeSubscriptionActive, f.notifier.emitted[0].Type)
}

func TestSubscribePendingThenWebhookActivates(t *testing.T) {
	f := newSubscriptionsFixture(t)
	ctx := context.Background()
	ref := uuid.NewString()
	f.gateway.outcomes = []payments.Result{{ProviderRef: ref, Status: enums.PaymentStatusPending}}

	subscription, err := f.svc.Subscribe(ctx, SubscribeInput{
		UserID:   uuid.New(),
		Plan:     "yearly",
		Provider: enums.PaymentProviderMTN,
		Phone:    "+22670000002",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPending, subscription.Status)
	assert.Empty(t, f.notifier.emitted)

	resolved, err := f.svc.ResolvePayment(ctx, ref, enums.PaymentStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, resolved.Status)

	row, err := f.wallets.FindTransactionByProviderRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, row.Status)

	// A retried webhook is a no-op.
	again, err := f.svc.ResolvePayment(ctx, ref, enums.PaymentStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, again.Status)
	require.NotNil(t, again.PeriodEnd)
	assert.Equal(t, resolved.PeriodEnd.Unix(), again.PeriodEnd.Unix())
}

func TestSubscribeFailedChargeCancelsSubscription(t *testing.T) {
	f := newSubscriptionsFixture(t)
	ctx := context.Background()
	f.gateway.outcomes = []payments.Result{{Status: enums.PaymentStatusFailed}}
	userID := uuid.New()

	subscription, err := f.svc.Subscribe(ctx, SubscribeInput{
		UserID:   userID,
		Plan:     "monthly",
		Provider: enums.PaymentProviderMTN,
		Phone:    "+22670000003",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCancelled, subscription.Status)
	assert.Empty(t, f.notifier.emitted)

	_, err = f.svc.Active(ctx, userID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestSubscribeChargeErrorCancelsUnpaidSubscription(t *testing.T) {
	f := newSubscriptionsFixture(t)
	ctx := context.Background()
	f.gateway.chargeErr = pkgerrors.New(pkgerrors.CodePaymentFailed, "provider rejected the request")
	userID := uuid.New()

	_, err := f.svc.Subscribe(ctx, SubscribeInput{
		UserID:   userID,
		Plan:     "monthly",
		Provider: enums.PaymentProviderMTN,
		Phone:    "+22670000004",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentFailed))

	list, err := f.svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enums.SubscriptionStatusCancelled, list[0].Status)
}

func TestSubscribeRejectsDuplicateActive(t *testing.T) {
	f := newSubscriptionsFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	input := SubscribeInput{
		UserID:   userID,
		Plan:     "monthly",
		Provider: enums.PaymentProviderMTN,
		Phone:    "+22670000005",
	}
	_, err := f.svc.Subscribe(ctx, input)
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestSubscribeUnknownPlan(t *testing.T) {
	f := newSubscriptionsFixture(t)

	_, err := f.svc.Subscribe(context.Background(), SubscribeInput{
		UserID:   uuid.New(),
		Plan:     "weekly",
		Provider: enums.PaymentProviderMTN,
		Phone:    "+22670000006",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.gateway.charges)
}

func TestActiveExpiresLapsedSubscription(t *testing.T) {
	f := newSubscriptionsFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	start := time.Now().UTC().Add(-40 * 24 * time.Hour)
	end := start.Add(30 * 24 * time.Hour)
	_, err := f.repo.Create(ctx, &models.Subscription{
		UserID:      userID,
		Status:      enums.SubscriptionStatusActive,
		Plan:        "monthly",
		Amount:      2000,
		Currency:    enums.CurrencyXOF,
		PeriodStart: &start,
		PeriodEnd:   &end,
	})
	require.NoError(t, err)

	_, err = f.svc.Active(ctx, userID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	list, err := f.svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enums.SubscriptionStatusExpired, list[0].Status)
}

func TestCancelActiveSubscription(t *testing.T) {
	f := newSubscriptionsFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	subscription, err := f.svc.Subscribe(ctx, SubscribeInput{
		UserID:   userID,
		Plan:     "monthly",
		Provider: enums.PaymentProviderMTN,
		Phone:    "+22670000007",
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, subscription.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	cancelled, err := f.svc.Cancel(ctx, subscription.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, subscription.ID, userID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}
