package orders

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

const (
	reasonExpired          = "expired"
	reasonCustomerCancel   = "cancelled by customer"
	reasonOperatorCancel   = "cancelled by operator"
	reasonGatewayExhausted = "gateway_unavailable"
)

func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = reasonCustomerCancel
		if actor.IsAdmin() {
			reason = reasonOperatorCancel
		}
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var cancelled *models.Order
	err := s.retrier.Run(ctx, func(ctx context.Context) error {
		cancelled = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.LockOrder(ctx, orderID)
			if err != nil {
				return notFoundOr(err, "order not found", "load order")
			}
			if !actor.IsAdmin() && order.UserID != actor.UserID {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			if !IsCancellable(order.OrderStatus) {
				return invalidTransition(order.OrderStatus, enums.OrderStatusCancelled, "order can no longer be cancelled")
			}
			items, err := repo.FindItems(ctx, orderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
			}
			if err := s.cancelLocked(ctx, tx, actor, order, items, reason); err != nil {
				return err
			}
			cancelled = order
			return nil
		})
	})
	if err != nil {
		return nil, asServiceError(err, "cancel order")
	}

	s.logg.Info(ctx, "order cancelled")
	s.dispatch(ctx, "order cancelled", func() error {
		return s.notifier.SendOrderCancelled(ctx, cancelled, cancelled.UserID, reason)
	})
	return s.view(ctx, orderID, nil)
}

// ExpireOrder cancels an abandoned card order once its payment window lapsed.
// Orders that were paid or moved on since they were listed are left alone.
func (s *service) ExpireOrder(ctx context.Context, orderID uuid.UUID) error {
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var expired *models.Order
	err := s.retrier.Run(ctx, func(ctx context.Context) error {
		expired = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.LockOrder(ctx, orderID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
			}
			if order.OrderStatus != enums.OrderStatusPending || order.PaymentStatus == enums.PaymentStatusPaid {
				return nil
			}
			items, err := repo.FindItems(ctx, orderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
			}
			if err := s.cancelLocked(ctx, tx, SystemActor, order, items, reasonExpired); err != nil {
				return err
			}
			expired = order
			return nil
		})
	})
	if err != nil {
		return asServiceError(err, "expire order")
	}
	if expired == nil {
		return nil
	}

	s.logg.Info(ctx, "pending order expired")
	s.dispatch(ctx, "order cancelled", func() error {
		return s.notifier.SendOrderCancelled(ctx, expired, expired.UserID, reasonExpired)
	})
	return nil
}

// cancelLocked releases every live item and cancels the order. It refuses once
// any item has shipped, since that stock has left the vendor. The caller holds
// the order row lock inside tx. order is updated in place.
func (s *service) cancelLocked(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, items []models.OrderItem, reason string) error {
	repo := s.repo.WithTx(tx)
	live := liveItems(items)
	for _, item := range live {
		if !IsCancellable(item.Status) {
			return invalidTransition(item.Status, enums.OrderStatusCancelled, "an item has already shipped")
		}
	}
	if err := s.releaseItems(ctx, tx, actor, order.ID, live); err != nil {
		return err
	}

	now := s.now().UTC()
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"order_status":  enums.OrderStatusCancelled,
		"cancelled_at":  now,
		"cancel_reason": reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}
	order.OrderStatus = enums.OrderStatusCancelled
	order.CancelledAt = &now
	order.CancelReason = &reason
	order.Version++

	if order.PaymentStatus != enums.PaymentStatusPaid {
		return nil
	}
	refunded, err := repo.SumRefunds(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum refunds")
	}
	return s.recordRefund(ctx, repo, order, order.TotalMinor-refunded)
}

// releaseItems returns the stock of items in stock-key order and marks them
// cancelled.
func (s *service) releaseItems(ctx context.Context, tx *gorm.DB, actor Actor, orderID uuid.UUID, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	entry := inventory.Entry{ReferenceID: &orderID, Note: "order cancelled"}
	if actor.UserID != uuid.Nil {
		actorID := actor.UserID
		entry.ActorID = &actorID
	}

	sorted := sortItems(items)
	ids := make([]uuid.UUID, 0, len(sorted))
	for _, item := range sorted {
		key := stockKey(item.ProductID, item.VariantID)
		if _, err := s.ledger.Release(ctx, tx, key, item.Quantity, enums.InventoryReasonCancellationRestore, entry); err != nil {
			return err
		}
		ids = append(ids, item.ID)
	}
	if err := s.repo.WithTx(tx).UpdateItemsStatus(ctx, ids, enums.OrderStatusCancelled); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order items")
	}
	return nil
}

// recordRefund writes a pending refund row. Settlement with the gateway happens
// out of band.
func (s *service) recordRefund(ctx context.Context, repo Repository, order *models.Order, amount int64) error {
	if amount <= 0 {
		return nil
	}
	refund := &models.PaymentTransaction{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Type:        enums.TransactionTypeRefund,
		AmountMinor: amount,
		Reference:   NewRefundReference(),
		Status:      enums.TransactionStatusPending,
	}
	if err := repo.CreatePaymentTransaction(ctx, refund); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}
	return nil
}

func liveItems(items []models.OrderItem) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		if item.Status != enums.OrderStatusCancelled {
			out = append(out, item)
		}
	}
	return out
}

func sortItems(items []models.OrderItem) []models.OrderItem {
	out := append([]models.OrderItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		return stockKey(out[i].ProductID, out[i].VariantID).String() < stockKey(out[j].ProductID, out[j].VariantID).String()
	})
	return out
}
