package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afribook/afribook-backend/internal/notifications"
	"github.com/afribook/afribook-backend/internal/payments"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/pagination"
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

// Entry describes one ledger movement to apply against a user's wallet.
type Entry struct {
	UserID         uuid.UUID
	Type           enums.TransactionType
	Amount         int64
	Fee            int64
	Currency       enums.Currency
	Provider       enums.PaymentProvider
	ProviderRef    *string
	OrderID        *uuid.UUID
	SubscriptionID *uuid.UUID
}

// DepositInput starts a mobile-money deposit into a wallet.
type DepositInput struct {
	UserID   uuid.UUID
	Amount   int64
	Provider enums.PaymentProvider
	Phone    string
}

// WithdrawalInput starts a mobile-money withdrawal out of a wallet.
type WithdrawalInput struct {
	UserID   uuid.UUID
	Amount   int64
	Provider enums.PaymentProvider
	Phone    string
}

// Service defines wallet and ledger operations.
type Service interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, error)
	ApplyCredit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error)
	ApplyDebit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error)
	InitiateDeposit(ctx context.Context, input DepositInput) (*models.Transaction, error)
	InitiateWithdrawal(ctx context.Context, input WithdrawalInput) (*models.Transaction, error)
	FindByProviderRef(ctx context.Context, providerRef string) (*models.Transaction, error)
	ReconcilePending(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Transaction, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	gateways gatewayResolver
	notify   notifier
	logger   *logger.Logger
	currency enums.Currency
}

// NewService builds a wallet service with the required dependencies.
func NewService(repo Repository, tx txRunner, gateways gatewayResolver, notify notifier, logg *logger.Logger, currency enums.Currency) (Service, error) {
	if repo == nil {
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
	if !currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", currency)
	}
	return &service{
		repo:     repo,
		tx:       tx,
		gateways: gateways,
		notify:   notify,
		logger:   logg,
		currency: currency,
	}, nil
}

func (s *service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.ensureWallet(ctx, s.repo, userID)
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindWalletByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, error) {
	wallet, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, wallet.ID, params)
}

// ApplyCredit records a completed credit and bumps the cached balance. It runs
// against the caller's transaction so the ledger row and the balance move
// together.
func (s *service) ApplyCredit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	wallet, err := s.ensureWallet(ctx, repo, entry.UserID)
	if err != nil {
		return nil, err
	}

	transaction := newLedgerRow(wallet.ID, entry, s.currency)
	markCompletedRow(transaction)
	if _, err := repo.CreateTransaction(ctx, transaction); err != nil {
		return nil, err
	}
	if err := repo.CreditBalance(ctx, wallet.ID, transaction.NetAmount); err != nil {
		return nil, err
	}
	return transaction, nil
}

// ApplyDebit records a completed debit after an atomic balance check. An
// insufficient balance leaves both the wallet and the ledger untouched.
func (s *service) ApplyDebit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	wallet, err := s.ensureWallet(ctx, repo, entry.UserID)
	if err != nil {
		return nil, err
	}

	debited, err := repo.DebitBalance(ctx, wallet.ID, entry.Amount)
	if err != nil {
		return nil, err
	}
	if !debited {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance too low").
			WithDetails(map[string]any{"required": entry.Amount, "balance": wallet.Balance})
	}

	transaction := newLedgerRow(wallet.ID, entry, s.currency)
	markCompletedRow(transaction)
	if _, err := repo.CreateTransaction(ctx, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

// InitiateDeposit charges the user's mobile-money account and opens a PENDING
// ledger row. The balance only moves when the transfer reconciles to
// COMPLETED, so a transfer that ultimately fails never credits the wallet.
func (s *service) InitiateDeposit(ctx context.Context, input DepositInput) (*models.Transaction, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit amount must be positive")
	}
	gw, err := s.gateways.Gateway(input.Provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment provider")
	}

	wallet, err := s.ensureWallet(ctx, s.repo, input.UserID)
	if err != nil {
		return nil, err
	}

	// Network call happens outside any database transaction.
	result, err := gw.Charge(ctx, payments.ChargeRequest{
		Amount:      input.Amount,
		Currency:    s.currency,
		PayerPhone:  input.Phone,
		ExternalRef: wallet.ID.String(),
		Description: "AfriBook wallet deposit",
	})
	if err != nil {
		return nil, err
	}

	transaction := newLedgerRow(wallet.ID, Entry{
		UserID:      input.UserID,
		Type:        enums.TransactionTypeDeposit,
		Amount:      input.Amount,
		Provider:    input.Provider,
		ProviderRef: &result.ProviderRef,
	}, s.currency)
	if _, err := s.repo.CreateTransaction(ctx, transaction); err != nil {
		return nil, err
	}

	if result.Status.IsTerminal() {
		return s.ReconcilePending(ctx, result.ProviderRef, result.Status)
	}
	return transaction, nil
}

// InitiateWithdrawal pays the user out over mobile money. Funds are checked at
// initiation but only debited when the transfer reconciles to COMPLETED.
func (s *service) InitiateWithdrawal(ctx context.Context, input WithdrawalInput) (*models.Transaction, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}
	gw, err := s.gateways.Gateway(input.Provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment provider")
	}

	wallet, err := s.Get(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if wallet.Balance < input.Amount {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance too low").
			WithDetails(map[string]any{"required": input.Amount, "balance": wallet.Balance})
	}

	result, err := gw.Payout(ctx, payments.PayoutRequest{
		Amount:      input.Amount,
		Currency:    s.currency,
		PayeePhone:  input.Phone,
		ExternalRef: wallet.ID.String(),
		Description: "AfriBook wallet withdrawal",
	})
	if err != nil {
		return nil, err
	}

	transaction := newLedgerRow(wallet.ID, Entry{
		UserID:      input.UserID,
		Type:        enums.TransactionTypeWithdrawal,
		Amount:      input.Amount,
		Provider:    input.Provider,
		ProviderRef: &result.ProviderRef,
	}, s.currency)
	if _, err := s.repo.CreateTransaction(ctx, transaction); err != nil {
		return nil, err
	}

	if result.Status.IsTerminal() {
		return s.ReconcilePending(ctx, result.ProviderRef, result.Status)
	}
	return transaction, nil
}

func (s *service) FindByProviderRef(ctx context.Context, providerRef string) (*models.Transaction, error) {
	transaction, err := s.repo.FindTransactionByProviderRef(ctx, providerRef)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown provider reference")
	}
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// ReconcilePending drives a PENDING deposit or withdrawal to its terminal
// state. Safe to call concurrently and repeatedly for the same reference:
// once a row is terminal every further call is a no-op.
func (s *service) ReconcilePending(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Transaction, error) {
	if !status.IsTerminal() {
		return s.FindByProviderRef(ctx, providerRef)
	}

	var reconciled *models.Transaction
	var transitioned bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		transaction, err := repo.FindTransactionByProviderRef(ctx, providerRef)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "unknown provider reference")
		}
		if err != nil {
			return err
		}
		if transaction.Status.IsTerminal() {
			// Duplicate webhook delivery; the first one already did the work.
			reconciled = transaction
			return nil
		}
		transitioned = true

		switch transaction.Type {
		case enums.TransactionTypeDeposit:
			if status == enums.PaymentStatusSucceeded {
				if err := repo.CreditBalance(ctx, transaction.WalletID, transaction.NetAmount); err != nil {
					return err
				}
				reconciled, err = s.completeRow(ctx, repo, transaction)
				return err
			}
			reconciled, err = s.failRow(ctx, repo, transaction)
			return err

		case enums.TransactionTypeWithdrawal:
			if status == enums.PaymentStatusSucceeded {
				debited, err := repo.DebitBalance(ctx, transaction.WalletID, transaction.Amount)
				if err != nil {
					return err
				}
				if !debited {
					// Balance was spent between initiation and confirmation.
					s.logger.Warn(s.logger.WithProviderRef(ctx, providerRef), "withdrawal confirmed but balance no longer covers it")
					reconciled, err = s.failRow(ctx, repo, transaction)
					return err
				}
				reconciled, err = s.completeRow(ctx, repo, transaction)
				return err
			}
			reconciled, err = s.failRow(ctx, repo, transaction)
			return err

		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("reference resolves to a %s transaction, not a wallet transfer", transaction.Type))
		}
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.emitTransferNotification(ctx, reconciled)
	}
	return reconciled, nil
}

func (s *service) completeRow(ctx context.Context, repo Repository, transaction *models.Transaction) (*models.Transaction, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       enums.TransactionStatusCompleted,
		"completed_at": now,
	}
	if err := repo.UpdateTransaction(ctx, transaction.ID, updates); err != nil {
		return nil, err
	}
	transaction.Status = enums.TransactionStatusCompleted
	transaction.CompletedAt = &now
	return transaction, nil
}

func (s *service) failRow(ctx context.Context, repo Repository, transaction *models.Transaction) (*models.Transaction, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":    enums.TransactionStatusFailed,
		"failed_at": now,
	}
	if err := repo.UpdateTransaction(ctx, transaction.ID, updates); err != nil {
		return nil, err
	}
	transaction.Status = enums.TransactionStatusFailed
	transaction.FailedAt = &now
	return transaction, nil
}

func (s *service) emitTransferNotification(ctx context.Context, transaction *models.Transaction) {
	if transaction == nil || transaction.Status != enums.TransactionStatusCompleted {
		return
	}

	wallet, err := s.repo.FindWalletByID(ctx, transaction.WalletID)
	if err != nil {
		s.logger.Error(ctx, "loading wallet for notification", err)
		return
	}

	switch transaction.Type {
	case enums.TransactionTypeDeposit:
		s.notify.Emit(ctx, notifications.CreateInput{
			UserID:  wallet.UserID,
			Type:    enums.NotificationTypeWalletDeposit,
			Title:   "Deposit received",
			Message: fmt.Sprintf("%d %s was added to your wallet.", transaction.NetAmount, transaction.Currency),
		})
	case enums.TransactionTypeWithdrawal:
		s.notify.Emit(ctx, notifications.CreateInput{
			UserID:  wallet.UserID,
			Type:    enums.NotificationTypeWalletWithdrawal,
			Title:   "Withdrawal sent",
			Message: fmt.Sprintf("%d %s was sent to your mobile money account.", transaction.Amount, transaction.Currency),
		})
	}
}

func (s *service) ensureWallet(ctx context.Context, repo Repository, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := repo.FindWalletByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return repo.CreateWallet(ctx, &models.Wallet{
		UserID:   userID,
		Currency: s.currency,
		Active:   true,
	})
}

func validateEntry(entry Entry) error {
	if entry.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !entry.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if entry.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if entry.Fee < 0 || entry.Fee > entry.Amount {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee must be within the amount")
	}
	return nil
}

func newLedgerRow(walletID uuid.UUID, entry Entry, fallbackCurrency enums.Currency) *models.Transaction {
	currency := entry.Currency
	if currency == "" {
		currency = fallbackCurrency
	}
	provider := entry.Provider
	if provider == "" {
		provider = enums.PaymentProviderWallet
	}
	return &models.Transaction{
		WalletID:       walletID,
		Type:           entry.Type,
		Status:         enums.TransactionStatusPending,
		Amount:         entry.Amount,
		Fee:            entry.Fee,
		NetAmount:      entry.Amount - entry.Fee,
		Currency:       currency,
		Provider:       provider,
		ProviderRef:    entry.ProviderRef,
		OrderID:        entry.OrderID,
		SubscriptionID: entry.SubscriptionID,
	}
}

func markCompletedRow(transaction *models.Transaction) {
	now := time.Now().UTC()
	transaction.Status = enums.TransactionStatusCompleted
	transaction.CompletedAt = &now
}
