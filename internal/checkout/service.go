package checkout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afribook/afribook-backend/internal/books"
	"github.com/afribook/afribook-backend/internal/commission"
	"github.com/afribook/afribook-backend/internal/notifications"
	"github.com/afribook/afribook-backend/internal/orders"
	"github.com/afribook/afribook-backend/internal/payments"
	"github.com/afribook/afribook-backend/internal/wallet"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayResolver interface {
	Gateway(provider enums.PaymentProvider) (payments.Gateway, error)
}

type ledger interface {
	ApplyCredit(ctx context.Context, tx *gorm.DB, entry wallet.Entry) (*models.Transaction, error)
}

type notifier interface {
	Emit(ctx context.Context, input notifications.CreateInput)
}

// Service drives the per-seller settlement state machine.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	ResolvePayment(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Order, error)
}

type service struct {
	orders         orders.Repository
	books          books.Repository
	wallets        wallet.Repository
	ledger         ledger
	tx             txRunner
	gateways       gatewayResolver
	notify         notifier
	calc           *commission.Calculator
	logger         *logger.Logger
	metrics        *metrics.SettlementMetrics
	deliveryFee    int64
	currency       enums.Currency
	platformUserID uuid.UUID
}

// NewService builds the settlement orchestrator with the required dependencies.
func NewService(
	ordersRepo orders.Repository,
	booksRepo books.Repository,
	walletRepo wallet.Repository,
	ledger ledger,
	tx txRunner,
	gateways gatewayResolver,
	notify notifier,
	calc *commission.Calculator,
	logg *logger.Logger,
	m *metrics.SettlementMetrics,
	deliveryFee int64,
	currency enums.Currency,
	platformUserID uuid.UUID,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if booksRepo == nil {
		return nil, fmt.Errorf("books repository required")
	}
	if walletRepo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
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
	if calc == nil {
		return nil, fmt.Errorf("commission calculator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deliveryFee < 0 {
		return nil, fmt.Errorf("delivery fee must be non-negative")
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", currency)
	}
	if platformUserID == uuid.Nil {
		return nil, fmt.Errorf("platform user id required")
	}
	return &service{
		orders:         ordersRepo,
		books:          booksRepo,
		wallets:        walletRepo,
		ledger:         ledger,
		tx:             tx,
		gateways:       gateways,
		notify:         notify,
		calc:           calc,
		logger:         logg,
		metrics:        m,
		deliveryFee:    deliveryFee,
		currency:       currency,
		platformUserID: platformUserID,
	}, nil
}

// Checkout splits the cart per seller and settles each sub-order
// independently. One seller's payment failing never rolls back another
// seller's settled order.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	gw, err := s.gateways.Gateway(input.Provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment provider")
	}

	found, err := s.books.FindByIDs(ctx, input.BookIDs)
	if err != nil {
		return nil, err
	}
	split, err := SplitCart(input.BuyerID, input.BookIDs, found)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{DroppedBookIDs: split.DroppedBookIDs}
	for _, group := range split.Groups {
		order, failure := s.settleGroup(ctx, gw, input, group)
		if failure != nil {
			result.Failures = append(result.Failures, *failure)
			continue
		}
		result.Orders = append(result.Orders, *order)
	}
	return result, nil
}

func (s *service) settleGroup(ctx context.Context, gw payments.Gateway, input CheckoutInput, group SellerGroup) (*models.Order, *OrderFailure) {
	order, err := s.createPendingOrder(ctx, input, group)
	if err != nil {
		s.logger.Error(ctx, "creating pending order", err)
		return nil, &OrderFailure{
			SellerID: group.SellerID,
			Code:     pkgerrors.CodeInternal,
			Reason:   "order could not be created",
		}
	}
	ctx = s.logger.WithOrderID(ctx, order.ID.String())
	start := time.Now()

	// The gateway call runs outside any database transaction.
	charge, err := gw.Charge(ctx, payments.ChargeRequest{
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		PayerPhone:  input.PayerPhone,
		ExternalRef: order.OrderNumber,
		Description: "AfriBook order " + order.OrderNumber,
	})
	if err != nil {
		s.logger.Error(ctx, "charging buyer", err)
		s.discardUnreferencedOrder(ctx, order)
		s.metrics.IncFailed(input.Provider.String())
		return nil, s.paymentFailure(group.SellerID, err)
	}

	switch charge.Status {
	case enums.PaymentStatusFailed:
		// A declined charge still carries the provider's reference, so the
		// order and a FAILED purchase row stay behind as the audit trail for
		// any later webhook about that reference.
		if charge.ProviderRef == "" {
			s.discardUnreferencedOrder(ctx, order)
		} else {
			s.recordDeclinedCharge(ctx, order, charge.ProviderRef, input.Provider)
		}
		s.metrics.IncFailed(input.Provider.String())
		return nil, &OrderFailure{
			SellerID: group.SellerID,
			Code:     pkgerrors.CodePaymentFailed,
			Reason:   "payment was declined",
		}

	case enums.PaymentStatusSucceeded:
		if err := s.settleOrder(ctx, order.ID, charge.ProviderRef, input.Provider); err != nil {
			s.logger.Error(ctx, "settling paid order", err)
			s.metrics.IncFailed(input.Provider.String())
			return nil, s.paymentFailure(group.SellerID, err)
		}
		s.metrics.ObserveDuration(input.Provider.String(), time.Since(start))
		settled, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return nil, s.paymentFailure(group.SellerID, err)
		}
		return settled, nil

	default:
		// Provider accepted the charge but has not confirmed yet. Record the
		// pending leg keyed by provider ref; the webhook finishes settlement.
		if err := s.recordPendingPurchase(ctx, order, charge.ProviderRef, input.Provider); err != nil {
			s.logger.Error(ctx, "recording pending purchase", err)
			// Without a ledger row the webhook can never find this order, so
			// leaving it PENDING would strand it forever.
			s.abandonUntrackedOrder(ctx, order.ID)
			s.metrics.IncFailed(input.Provider.String())
			return nil, s.paymentFailure(group.SellerID, err)
		}
		return order, nil
	}
}

func (s *service) createPendingOrder(ctx context.Context, input CheckoutInput, group SellerGroup) (*models.Order, error) {
	breakdown, err := s.calc.Split(group.Subtotal)
	if err != nil {
		return nil, err
	}

	deliveryFee := int64(0)
	if input.DeliveryType == enums.DeliveryTypeShipping {
		deliveryFee = s.deliveryFee
	}

	order := &models.Order{
		OrderNumber:     generateOrderNumber(),
		BuyerID:         input.BuyerID,
		SellerID:        group.SellerID,
		Status:          enums.OrderStatusPending,
		Subtotal:        breakdown.Subtotal,
		Commission:      breakdown.Commission,
		SellerAmount:    breakdown.SellerAmount,
		DeliveryFee:     deliveryFee,
		TotalAmount:     breakdown.Subtotal + deliveryFee,
		Currency:        s.currency,
		DeliveryType:    input.DeliveryType,
		DeliveryAddress: input.DeliveryAddress,
	}
	for _, book := range group.Books {
		order.Items = append(order.Items, models.OrderItem{
			BookID:    book.ID,
			Title:     book.Title,
			Qty:       1,
			UnitPrice: book.Price,
		})
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err = s.orders.WithTx(tx).Create(ctx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// settleOrder finalizes payment for one order: PAID status, invoice, SOLD
// books, seller and platform wallet credits, purchase ledger row. The
// PENDING -> PAID guard makes it idempotent; the synchronous path and the
// webhook path both funnel here and whichever runs second is a no-op.
func (s *service) settleOrder(ctx context.Context, orderID uuid.UUID, providerRef string, provider enums.PaymentProvider) error {
	var settled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		moved, err := repo.TransitionStatus(ctx, orderID,
			[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusPaid, "paid_at")
		if err != nil {
			return err
		}
		if !moved {
			// Already settled or cancelled by a concurrent path.
			return nil
		}

		if _, err := repo.CreateInvoice(ctx, &models.Invoice{
			OrderID:       order.ID,
			InvoiceNumber: invoiceNumber(order.OrderNumber),
			Amount:        order.TotalAmount,
			Currency:      order.Currency,
		}); err != nil {
			return err
		}

		inventory := s.books.WithTx(tx)
		for _, item := range order.Items {
			sold, err := inventory.MarkSold(ctx, item.BookID)
			if err != nil {
				return err
			}
			if !sold {
				return pkgerrors.New(pkgerrors.CodeConflict, "listing was sold concurrently").
					WithDetails(map[string]any{"book_id": item.BookID})
			}
		}

		if _, err := s.ledger.ApplyCredit(ctx, tx, wallet.Entry{
			UserID:  order.SellerID,
			Type:    enums.TransactionTypeSale,
			Amount:  order.SellerAmount,
			OrderID: &order.ID,
		}); err != nil {
			return err
		}
		if order.Commission > 0 {
			if _, err := s.ledger.ApplyCredit(ctx, tx, wallet.Entry{
				UserID:  s.platformUserID,
				Type:    enums.TransactionTypeCommission,
				Amount:  order.Commission,
				OrderID: &order.ID,
			}); err != nil {
				return err
			}
		}

		if err := s.completePurchaseRow(ctx, tx, order, providerRef, provider); err != nil {
			return err
		}

		settled = order
		return nil
	})
	if err != nil {
		return err
	}

	if settled != nil {
		s.metrics.IncSettled(provider.String())
		s.emitSettled(ctx, settled)
	}
	return nil
}

// completePurchaseRow records the buyer's external payment in the ledger. The
// async path already has a PENDING row keyed by provider ref; the sync path
// creates the row terminal in one shot.
func (s *service) completePurchaseRow(ctx context.Context, tx *gorm.DB, order *models.Order, providerRef string, provider enums.PaymentProvider) error {
	repo := s.wallets.WithTx(tx)
	now := time.Now().UTC()

	existing, err := repo.FindTransactionByProviderRef(ctx, providerRef)
	if err == nil {
		return repo.UpdateTransaction(ctx, existing.ID, map[string]any{
			"status":       enums.TransactionStatusCompleted,
			"completed_at": now,
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	buyerWallet, err := s.ensureWallet(ctx, repo, order.BuyerID)
	if err != nil {
		return err
	}
	_, err = repo.CreateTransaction(ctx, &models.Transaction{
		WalletID:    buyerWallet.ID,
		Type:        enums.TransactionTypePurchase,
		Status:      enums.TransactionStatusCompleted,
		Amount:      order.TotalAmount,
		NetAmount:   order.TotalAmount,
		Currency:    order.Currency,
		Provider:    provider,
		ProviderRef: &providerRef,
		OrderID:     &order.ID,
		CompletedAt: &now,
	})
	return err
}

func (s *service) recordPendingPurchase(ctx context.Context, order *models.Order, providerRef string, provider enums.PaymentProvider) error {
	buyerWallet, err := s.ensureWallet(ctx, s.wallets, order.BuyerID)
	if err != nil {
		return err
	}
	_, err = s.wallets.CreateTransaction(ctx, &models.Transaction{
		WalletID:    buyerWallet.ID,
		Type:        enums.TransactionTypePurchase,
		Status:      enums.TransactionStatusPending,
		Amount:      order.TotalAmount,
		NetAmount:   order.TotalAmount,
		Currency:    order.Currency,
		Provider:    provider,
		ProviderRef: &providerRef,
		OrderID:     &order.ID,
	})
	return err
}

// ResolvePayment finishes an order whose charge was confirmed asynchronously.
// The webhook handler routes PURCHASE references here.
func (s *service) ResolvePayment(ctx context.Context, providerRef string, status enums.PaymentStatus) (*models.Order, error) {
	transaction, err := s.wallets.FindTransactionByProviderRef(ctx, providerRef)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown provider reference")
	}
	if err != nil {
		return nil, err
	}
	if transaction.OrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reference is not linked to an order")
	}
	orderID := *transaction.OrderID

	switch status {
	case enums.PaymentStatusSucceeded:
		if err := s.settleOrder(ctx, orderID, providerRef, transaction.Provider); err != nil {
			return nil, err
		}
	case enums.PaymentStatusFailed:
		if err := s.failOrder(ctx, orderID, transaction.ID, transaction.Provider); err != nil {
			return nil, err
		}
	default:
		// Still pending, nothing to reconcile.
	}
	return s.orders.FindByID(ctx, orderID)
}

// failOrder cancels an order whose async charge was declined. The order has an
// external reference by now, so it is cancelled rather than deleted.
func (s *service) failOrder(ctx context.Context, orderID, transactionID uuid.UUID, provider enums.PaymentProvider) error {
	var moved bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		moved, err = s.orders.WithTx(tx).TransitionStatus(ctx, orderID,
			[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusCancelled, "cancelled_at")
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		return s.wallets.WithTx(tx).UpdateTransaction(ctx, transactionID, map[string]any{
			"status":    enums.TransactionStatusFailed,
			"failed_at": time.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	if moved {
		s.metrics.IncFailed(provider.String())
	}
	return nil
}

// recordDeclinedCharge cancels an order whose synchronous charge came back
// declined and records the FAILED purchase row keyed by the provider ref.
func (s *service) recordDeclinedCharge(ctx context.Context, order *models.Order, providerRef string, provider enums.PaymentProvider) {
	now := time.Now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.orders.WithTx(tx).TransitionStatus(ctx, order.ID,
			[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusCancelled, "cancelled_at"); err != nil {
			return err
		}
		repo := s.wallets.WithTx(tx)
		buyerWallet, err := s.ensureWallet(ctx, repo, order.BuyerID)
		if err != nil {
			return err
		}
		_, err = repo.CreateTransaction(ctx, &models.Transaction{
			WalletID:    buyerWallet.ID,
			Type:        enums.TransactionTypePurchase,
			Status:      enums.TransactionStatusFailed,
			Amount:      order.TotalAmount,
			NetAmount:   order.TotalAmount,
			Currency:    order.Currency,
			Provider:    provider,
			ProviderRef: &providerRef,
			OrderID:     &order.ID,
			FailedAt:    &now,
		})
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "recording declined charge", err)
	}
}

// abandonUntrackedOrder cancels a PENDING order whose charge reference could
// not be persisted.
func (s *service) abandonUntrackedOrder(ctx context.Context, orderID uuid.UUID) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.orders.WithTx(tx).TransitionStatus(ctx, orderID,
			[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusCancelled, "cancelled_at")
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "cancelling untracked order", err)
	}
}

// discardUnreferencedOrder removes a PENDING order whose charge never produced
// an external reference. Inventory, wallets, and notifications were never
// touched for it.
func (s *service) discardUnreferencedOrder(ctx context.Context, order *models.Order) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.orders.WithTx(tx).Delete(ctx, order.ID)
	})
	if err != nil {
		s.logger.Error(ctx, "discarding unpaid order", err)
	}
}

func (s *service) emitSettled(ctx context.Context, order *models.Order) {
	s.notify.Emit(ctx, notifications.CreateInput{
		UserID:  order.SellerID,
		Type:    enums.NotificationTypeNewSale,
		Title:   "Nouvelle vente",
		Message: fmt.Sprintf("Commande %s payee: %d %s.", order.OrderNumber, order.SellerAmount, order.Currency),
		Link:    "/orders/" + order.ID.String(),
	})
	s.notify.Emit(ctx, notifications.CreateInput{
		UserID:  order.BuyerID,
		Type:    enums.NotificationTypeOrderConfirmed,
		Title:   "Commande confirmee",
		Message: fmt.Sprintf("Commande %s confirmee.", order.OrderNumber),
		Link:    "/orders/" + order.ID.String(),
	})
}

func (s *service) ensureWallet(ctx context.Context, repo wallet.Repository, userID uuid.UUID) (*models.Wallet, error) {
	existing, err := repo.FindWalletByUserID(ctx, userID)
	if err == nil {
		return existing, nil
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

func (s *service) validateInput(input CheckoutInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if len(input.BookIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one book id required")
	}
	if !input.DeliveryType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery type")
	}
	if input.DeliveryType == enums.DeliveryTypeShipping && (input.DeliveryAddress == nil || input.DeliveryAddress.IsEmpty()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery address required for shipping")
	}
	return nil
}

func (s *service) paymentFailure(sellerID uuid.UUID, err error) *OrderFailure {
	code := pkgerrors.CodePaymentFailed
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	}
	return &OrderFailure{
		SellerID: sellerID,
		Code:     code,
		Reason:   pkgerrors.MetadataFor(code).PublicMessage,
	}
}

func generateOrderNumber() string {
	var buf [4]byte
	rand.Read(buf[:])
	return fmt.Sprintf("AB-%s-%s",
		time.Now().UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(buf[:])))
}

func invoiceNumber(orderNumber string) string {
	return "INV-" + strings.TrimPrefix(orderNumber, "AB-")
}
