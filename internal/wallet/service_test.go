package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/afribook/afribook-backend/internal/notifications"
	"github.com/afribook/afribook-backend/internal/payments"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	wallets := `
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  balance INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'XOF',
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS transactions (
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
);`
	require.NoError(t, db.Exec(wallets).Error)
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	provider enums.PaymentProvider
	result   *payments.Result
	err      error

	charges []payments.ChargeRequest
	payouts []payments.PayoutRequest
}

func (f *fakeGateway) Provider() enums.PaymentProvider { return f.provider }

func (f *fakeGateway) Charge(ctx context.Context, req payments.ChargeRequest) (*payments.Result, error) {
	f.charges = append(f.charges, req)
	return f.result, f.err
}

func (f *fakeGateway) Payout(ctx context.Context, req payments.PayoutRequest) (*payments.Result, error) {
	f.payouts = append(f.payouts, req)
	return f.result, f.err
}

type fakeNotifier struct {
	emitted []notifications.CreateInput
}

func (f *fakeNotifier) Emit(ctx context.Context, input notifications.CreateInput) {
	f.emitted = append(f.emitted, input)
}

type walletFixture struct {
	db       *gorm.DB
	repo     Repository
	svc      Service
	gateway  *fakeGateway
	notifier *fakeNotifier
}

func newWalletFixture(t *testing.T, gateway *fakeGateway) *walletFixture {
	t.Helper()

	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	if gateway == nil {
		gateway = &fakeGateway{provider: enums.PaymentProviderMTN}
	}
	resolver, err := payments.NewResolver(gateway)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	svc, err := NewService(repo, &gormTxRunner{db: db}, resolver, notifier,
		logger.New(logger.Options{ServiceName: "wallet-test"}), enums.CurrencyXOF)
	require.NoError(t, err)

	return &walletFixture{db: db, repo: repo, svc: svc, gateway: gateway, notifier: notifier}
}

func (f *walletFixture) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	wallet, err := f.repo.FindWalletByUserID(context.Background(), userID)
	require.NoError(t, err)
	return wallet.Balance
}

func TestApplyCreditCreatesWalletAndBumpsBalance(t *testing.T) {
	f := newWalletFixture(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	transaction, err := f.svc.ApplyCredit(ctx, f.db, Entry{
		UserID: userID,
		Type:   enums.TransactionTypeSale,
		Amount: 9500,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, transaction.Status)
	assert.Equal(t, int64(9500), f.balance(t, userID))
}

func TestApplyDebitInsufficientFundsLeavesBalanceUnchanged(t *testing.T) {
	f := newWalletFixture(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.ApplyCredit(ctx, f.db, Entry{
		UserID: userID,
		Type:   enums.TransactionTypeDeposit,
		Amount: 1000,
	})
	require.NoError(t, err)

	_, err = f.svc.ApplyDebit(ctx, f.db, Entry{
		UserID: userID,
		Type:   enums.TransactionTypePurchase,
		Amount: 5000,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))
	assert.Equal(t, int64(1000), f.balance(t, userID))

	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).
		Where("type = ?", enums.TransactionTypePurchase).Count(&count).Error)
	assert.Zero(t, count, "failed debit must not leave a ledger row")
}

func TestInitiateDepositPendingThenReconcile(t *testing.T) {
	gateway := &fakeGateway{
		provider: enums.PaymentProviderMTN,
		result:   &payments.Result{ProviderRef: "dep-ref-1", Status: enums.PaymentStatusPending},
	}
	f := newWalletFixture(t, gateway)
	ctx := context.Background()
	userID := uuid.New()

	transaction, err := f.svc.InitiateDeposit(ctx, DepositInput{
		UserID:   userID,
		Amount:   20000,
		Provider: enums.PaymentProviderMTN,
		Phone:    "22997000001",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, transaction.Status)
	assert.Equal(t, int64(0), f.balance(t, userID), "pending deposit must not credit the balance")

	reconciled, err := f.svc.ReconcilePending(ctx, "dep-ref-1", enums.PaymentStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, reconciled.Status)
	assert.Equal(t, int64(20000), f.balance(t, userID))

	// Webhook retries are no-ops once the row is terminal.
	again, err := f.svc.ReconcilePending(ctx, "dep-ref-1", enums.PaymentStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, again.Status)
	assert.Equal(t, int64(20000), f.balance(t, userID))

	require.Len(t, f.notifier.emitted, 1)
	assert.Equal(t, enums.NotificationTypeWalletDeposit, f.notifier.emitted[0].Type)
}

func TestInitiateDepositSynchronousSuccessCreditsImmediately(t *testing.T) {
	gateway := &fakeGateway{
		provider: enums.PaymentProviderMTN,
		result:   &payments.Result{ProviderRef: "dep-ref-2", Status: enums.PaymentStatusSucceeded},
	}
	f := newWalletFixture(t, gateway)
	userID := uuid.New()

	transaction, err := f.svc.InitiateDeposit(context.Background(), DepositInput{
		UserID:   userID,
		Amount:   7500,
		Provider: enums.PaymentProviderMTN,
		Phone:    "22997000002",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, transaction.Status)
	assert.Equal(t, int64(7500), f.balance(t, userID))
}

func TestDepositFailureNeverCredits(t *testing.T) {
	gateway := &fakeGateway{
		provider: enums.PaymentProviderMTN,
		result:   &payments.Result{ProviderRef: "dep-ref-3", Status: enums.PaymentStatusPending},
	}
	f := newWalletFixture(t, gateway)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.InitiateDeposit(ctx, DepositInput{
		UserID:   userID,
		Amount:   3000,
		Provider: enums.PaymentProviderMTN,
		Phone:    "22997000003",
	})
	require.NoError(t, err)

	reconciled, err := f.svc.ReconcilePending(ctx, "dep-ref-3", enums.PaymentStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusFailed, reconciled.Status)
	assert.Equal(t, int64(0), f.balance(t, userID))
	assert.Empty(t, f.notifier.emitted)
}

func TestWithdrawalDebitsOnReconcileOnly(t *testing.T) {
	gateway := &fakeGateway{
		provider: enums.PaymentProviderMoov,
		result:   &payments.Result{ProviderRef: "wd-ref-1", Status: enums.PaymentStatusPending},
	}
	f := newWalletFixture(t, gateway)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.ApplyCredit(ctx, f.db, Entry{
		UserID: userID,
		Type:   enums.TransactionTypeSale,
		Amount: 10000,
	})
	require.NoError(t, err)

	transaction, err := f.svc.InitiateWithdrawal(ctx, WithdrawalInput{
		UserID:   userID,
		Amount:   4000,
		Provider: enums.PaymentProviderMoov,
		Phone:    "22996000001",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, transaction.Status)
	assert.Equal(t, int64(10000), f.balance(t, userID), "pending withdrawal must not debit yet")

	reconciled, err := f.svc.ReconcilePending(ctx, "wd-ref-1", enums.PaymentStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, reconciled.Status)
	assert.Equal(t, int64(6000), f.balance(t, userID))
}

func TestWithdrawalRejectedWhenBalanceTooLow(t *testing.T) {
	f := newWalletFixture(t, &fakeGateway{provider: enums.PaymentProviderMTN})
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.ApplyCredit(ctx, f.db, Entry{
		UserID: userID,
		Type:   enums.TransactionTypeDeposit,
		Amount: 500,
	})
	require.NoError(t, err)

	_, err = f.svc.InitiateWithdrawal(ctx, WithdrawalInput{
		UserID:   userID,
		Amount:   4000,
		Provider: enums.PaymentProviderMTN,
		Phone:    "22997000004",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))
	assert.Empty(t, f.gateway.payouts, "no payout may be initiated without funds")
	assert.Equal(t, int64(500), f.balance(t, userID))
}

func TestWithdrawalConfirmedAfterBalanceSpentFails(t *testing.T) {
	gateway := &fakeGateway{
		provider: enums.PaymentProviderMTN,
		result:   &payments.Result{ProviderRef: "wd-ref-2", Status: enums.PaymentStatusPending},
	}
	f := newWalletFixture(t, gateway)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.ApplyCredit(ctx, f.db, Entry{
		UserID: userID,
		Type:   enums.TransactionTypeDeposit,
		Amount: 5000,
	})
	require.NoError(t, err)

	_, err = f.svc.InitiateWithdrawal(ctx, WithdrawalInput{
		UserID:   userID,
		Amount:   5000,
		Provider: enums.PaymentProviderMTN,
		Phone:    "22997000005",
	})
	require.NoError(t, err)

	// The balance is spent before the provider confirms.
	_, err = f.svc.ApplyDebit(ctx, f.db, Entry{
		UserID: userID,
		Type:   enums.TransactionTypePurchase,
		Amount: 5000,
	})
	require.NoError(t, err)

	reconciled, err := f.svc.ReconcilePending(ctx, "wd-ref-2", enums.PaymentStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusFailed, reconciled.Status, "overdraw must fail instead of going negative")
	assert.Equal(t, int64(0), f.balance(t, userID))
}

func TestReconcileUnknownReference(t *testing.T) {
	f := newWalletFixture(t, nil)

	_, err := f.svc.ReconcilePending(context.Background(), "no-such-ref", enums.PaymentStatusSucceeded)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
