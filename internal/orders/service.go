package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afribook/afribook-backend/internal/books"
	"github.com/afribook/afribook-backend/internal/notifications"
	"github.com/afribook/afribook-backend/internal/wallet"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledger interface {
	ApplyCredit(ctx context.Context, tx *gorm.DB, entry wallet.Entry) (*models.Transaction, error)
	ApplyDebit(ctx context.Context, tx *gorm.DB, entry wallet.Entry) (*models.Transaction, error)
}

type notifier interface {
	Emit(ctx context.Context, input notifications.CreateInput)
}

// Service defines order reads and lifecycle transitions after settlement.
type Service interface {
	Get(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, error)
	MarkShipped(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo           Repository
	tx             txRunner
	ledger         ledger
	inventory      books.Repository
	notify         notifier
	logger         *logger.Logger
	platformUserID uuid.UUID
}

// NewService builds an orders service with the required dependencies.
func NewService(repo Repository, tx txRunner, ledger ledger, inventory books.Repository, notify notifier, logg *logger.Logger, platformUserID uuid.UUID) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("books repository required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if platformUserID == uuid.Nil {
		return nil, fmt.Errorf("platform user id required")
	}
	return &service{
		repo:           repo,
		tx:             tx,
		ledger:         ledger,
		inventory:      inventory,
		notify:         notify,
		logger:         logg,
		platformUserID: platformUserID,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID && order.SellerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	return s.repo.ListByBuyer(ctx, buyerID, params, filters)
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	return s.repo.ListBySeller(ctx, sellerID, params, filters)
}

// MarkShipped moves a PAID order to SHIPPED. Only the seller may ship.
func (s *service) MarkShipped(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can ship an order")
	}

	moved, err := s.repo.TransitionStatus(ctx, orderID,
		[]enums.OrderStatus{enums.OrderStatusPaid}, enums.OrderStatusShipped, "shipped_at")
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, s.transitionConflict(order.Status, enums.OrderStatusShipped)
	}

	s.notify.Emit(ctx, notifications.CreateInput{
		UserID:  order.BuyerID,
		Type:    enums.NotificationTypeOrderShipped,
		Title:   "Order shipped",
		Message: fmt.Sprintf("Order %s is on its way.", order.OrderNumber),
		Link:    "/orders/" + order.ID.String(),
	})
	return s.findOrder(ctx, orderID)
}

// MarkDelivered moves a SHIPPED order to DELIVERED. Only the buyer confirms.
func (s *service) MarkDelivered(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm delivery")
	}

	moved, err := s.repo.TransitionStatus(ctx, orderID,
		[]enums.OrderStatus{enums.OrderStatusShipped}, enums.OrderStatusDelivered, "delivered_at")
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, s.transitionConflict(order.Status, enums.OrderStatusDelivered)
	}

	s.notify.Emit(ctx, notifications.CreateInput{
		UserID:  order.SellerID,
		Type:    enums.NotificationTypeOrderDelivered,
		Title:   "Order delivered",
		Message: fmt.Sprintf("Order %s was confirmed delivered.", order.OrderNumber),
		Link:    "/orders/" + order.ID.String(),
	})
	return s.findOrder(ctx, orderID)
}

// Cancel terminates a PENDING or PAID order. Cancelling a PAID order reverses
// the settlement: the buyer is refunded in full, the seller and the platform
// give back their legs, and the books return to sale.
func (s *service) Cancel(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID && order.SellerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}

	switch order.Status {
	case enums.OrderStatusPending:
		moved, err := s.repo.TransitionStatus(ctx, orderID,
			[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusCancelled, "cancelled_at")
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, s.transitionConflict(order.Status, enums.OrderStatusCancelled)
		}

	case enums.OrderStatusPaid:
		if err := s.refundPaidOrder(ctx, order); err != nil {
			return nil, err
		}

	default:
		return nil, s.transitionConflict(order.Status, enums.OrderStatusCancelled)
	}

	s.emitCancelled(ctx, order)
	return s.findOrder(ctx, orderID)
}

func (s *service) refundPaidOrder(ctx context.Context, order *models.Order) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.TransitionStatus(ctx, order.ID,
			[]enums.OrderStatus{enums.OrderStatusPaid}, enums.OrderStatusCancelled, "cancelled_at")
		if err != nil {
			return err
		}
		if !moved {
			return s.transitionConflict(order.Status, enums.OrderStatusCancelled)
		}

		// Claw back both settlement legs before refunding the buyer.
		if order.SellerAmount > 0 {
			if _, err := s.ledger.ApplyDebit(ctx, tx, wallet.Entry{
				UserID:  order.SellerID,
				Type:    enums.TransactionTypeRefund,
				Amount:  order.SellerAmount,
				OrderID: &order.ID,
			}); err != nil {
				return err
			}
		}
		if order.Commission > 0 {
			if _, err := s.ledger.ApplyDebit(ctx, tx, wallet.Entry{
				UserID:  s.platformUserID,
				Type:    enums.TransactionTypeRefund,
				Amount:  order.Commission,
				OrderID: &order.ID,
			}); err != nil {
				return err
			}
		}
		if _, err := s.ledger.ApplyCredit(ctx, tx, wallet.Entry{
			UserID:  order.BuyerID,
			Type:    enums.TransactionTypeRefund,
			Amount:  order.TotalAmount,
			OrderID: &order.ID,
		}); err != nil {
			return err
		}

		inventory := s.inventory.WithTx(tx)
		for _, item := range order.Items {
			if err := inventory.Relist(ctx, item.BookID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) emitCancelled(ctx context.Context, order *models.Order) {
	message := fmt.Sprintf("Order %s was cancelled.", order.OrderNumber)
	for _, userID := range []uuid.UUID{order.BuyerID, order.SellerID} {
		s.notify.Emit(ctx, notifications.CreateInput{
			UserID:  userID,
			Type:    enums.NotificationTypeOrderCancelled,
			Title:   "Order cancelled",
			Message: message,
			Link:    "/orders/" + order.ID.String(),
		})
	}
}

func (s *service) findOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) transitionConflict(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot move order from %s to %s", from, to))
}
