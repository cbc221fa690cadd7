package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

const reasonVendorCancel = "cancelled by vendor"

var fulfillmentStages = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
}

var fulfillmentRank = map[enums.OrderStatus]int{
	enums.OrderStatusPending:    0,
	enums.OrderStatusProcessing: 1,
	enums.OrderStatusShipped:    2,
	enums.OrderStatusDelivered:  3,
}

// transitionOutcome collects what happened inside the transaction so the
// notifications can be sent after commit.
type transitionOutcome struct {
	order          *models.Order
	cancelled      bool
	cancelReason   string
	paidOnDelivery *models.PaymentTransaction
	vendors        []uuid.UUID
}

func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target enums.OrderStatus, note string) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	note = strings.TrimSpace(note)

	var vendorFilter *uuid.UUID
	switch {
	case actor.IsAdmin():
		if target == enums.OrderStatusCancelled {
			return s.Cancel(ctx, actor, orderID, note)
		}
	case actor.IsVendor():
		vendorFilter = actor.VendorID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and admins can update order status")
	}

	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
		"target_status": target,
		"actor_role":    actor.Role,
	})

	var out transitionOutcome
	err := s.retrier.Run(ctx, func(ctx context.Context) error {
		out = transitionOutcome{}
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.LockOrder(ctx, orderID)
			if err != nil {
				return notFoundOr(err, "order not found", "load order")
			}
			items, err := repo.FindItems(ctx, orderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
			}
			out.order = order
			out.vendors = vendorIDs(items)
			if actor.IsAdmin() {
				return s.adminTransition(ctx, tx, order, items, target, &out)
			}
			return s.vendorTransition(ctx, tx, actor, order, items, target, note, &out)
		})
	})
	if err != nil {
		return nil, asServiceError(err, "update order status")
	}

	if note != "" {
		ctx = s.logg.WithField(ctx, "note", note)
	}
	s.logg.Info(ctx, "order status updated")
	s.afterTransition(ctx, out)
	return s.view(ctx, orderID, vendorFilter)
}

func (s *service) adminTransition(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderItem, target enums.OrderStatus, out *transitionOutcome) error {
	if err := checkTransition(order, order.OrderStatus, target); err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range liveItems(items) {
		if fulfillmentRank[item.Status] < fulfillmentRank[target] {
			ids = append(ids, item.ID)
		}
	}
	if err := s.repo.WithTx(tx).UpdateItemsStatus(ctx, ids, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order items")
	}
	return s.advanceOrder(ctx, tx, order, target, out)
}

func (s *service) vendorTransition(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, items []models.OrderItem, target enums.OrderStatus, note string, out *transitionOutcome) error {
	vendorID := *actor.VendorID
	var mine, others []models.OrderItem
	for _, item := range liveItems(items) {
		if item.VendorID == vendorID {
			mine = append(mine, item)
		} else {
			others = append(others, item)
		}
	}
	if len(mine) == 0 {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order has no open items for this vendor")
	}

	if target == enums.OrderStatusCancelled {
		return s.vendorCancel(ctx, tx, actor, order, items, mine, others, note, out)
	}

	ids := make([]uuid.UUID, 0, len(mine))
	for i := range mine {
		if err := checkTransition(order, mine[i].Status, target); err != nil {
			return err
		}
		ids = append(ids, mine[i].ID)
		mine[i].Status = target
	}
	if err := s.repo.WithTx(tx).UpdateItemsStatus(ctx, ids, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order items")
	}
	return s.syncAggregate(ctx, tx, order, append(mine, others...), out)
}

// vendorCancel drops one vendor's lines. When nothing else is live the whole
// order is cancelled, otherwise only those lines are released and refunded.
func (s *service) vendorCancel(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, items, mine, others []models.OrderItem, note string, out *transitionOutcome) error {
	if !IsCancellable(order.OrderStatus) {
		return invalidTransition(order.OrderStatus, enums.OrderStatusCancelled, "order can no longer be cancelled")
	}
	for _, item := range mine {
		if !IsCancellable(item.Status) {
			return invalidTransition(item.Status, enums.OrderStatusCancelled, "item can no longer be cancelled")
		}
	}
	reason := note
	if reason == "" {
		reason = reasonVendorCancel
	}

	if len(others) == 0 {
		if err := s.cancelLocked(ctx, tx, actor, order, items, reason); err != nil {
			return err
		}
		out.cancelled = true
		out.cancelReason = reason
		return nil
	}

	if err := s.releaseItems(ctx, tx, actor, order.ID, mine); err != nil {
		return err
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		var amount int64
		for _, item := range mine {
			amount += item.SubtotalMinor
		}
		if err := s.recordRefund(ctx, s.repo.WithTx(tx), order, amount); err != nil {
			return err
		}
	}
	return s.syncAggregate(ctx, tx, order, others, out)
}

// syncAggregate walks the order forward one stage at a time until it reaches
// the least advanced live item. Each stage goes through advanceOrder, so
// vendors that skip ahead of each other still leave shipped_at, delivered_at
// and the cash-on-delivery confirmation behind.
func (s *service) syncAggregate(ctx context.Context, tx *gorm.DB, order *models.Order, live []models.OrderItem, out *transitionOutcome) error {
	if len(live) == 0 {
		return nil
	}
	if _, ok := fulfillmentRank[order.OrderStatus]; !ok {
		return nil
	}
	floor := fulfillmentRank[live[0].Status]
	for _, item := range live[1:] {
		if rank := fulfillmentRank[item.Status]; rank < floor {
			floor = rank
		}
	}
	for fulfillmentRank[order.OrderStatus] < floor {
		next := fulfillmentStages[fulfillmentRank[order.OrderStatus]+1]
		if err := checkTransition(order, order.OrderStatus, next); err != nil {
			return err
		}
		if err := s.advanceOrder(ctx, tx, order, next, out); err != nil {
			return err
		}
	}
	return nil
}

// advanceOrder writes the order-level status change. Delivering an unpaid order
// confirms its cash payment.
func (s *service) advanceOrder(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, out *transitionOutcome) error {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	updates := map[string]any{"order_status": target}
	switch target {
	case enums.OrderStatusShipped:
		updates["shipped_at"] = now
		order.ShippedAt = &now
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
		order.DeliveredAt = &now
		if order.PaymentStatus == enums.PaymentStatusPending {
			txn, err := s.confirmCashPayment(ctx, repo, order)
			if err != nil {
				return err
			}
			updates["payment_status"] = enums.PaymentStatusPaid
			updates["paid_at"] = now
			order.PaymentStatus = enums.PaymentStatusPaid
			order.PaidAt = &now
			out.paidOnDelivery = txn
		}
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	order.OrderStatus = target
	order.Version++
	return nil
}

// confirmCashPayment settles the open payment attempt, or records a cash
// payment when there is none.
func (s *service) confirmCashPayment(ctx context.Context, repo Repository, order *models.Order) (*models.PaymentTransaction, error) {
	open, err := repo.FindOpenPayment(ctx, order.ID)
	switch {
	case err == nil:
		channel := channelCash
		if open.Channel != nil && *open.Channel != "" {
			channel = *open.Channel
		}
		if err := repo.UpdatePaymentTransaction(ctx, open.ID, map[string]any{
			"status":  enums.TransactionStatusSuccess,
			"channel": channel,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm payment")
		}
		open.Status = enums.TransactionStatusSuccess
		open.Channel = &channel
		return open, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		channel := channelCash
		txn := &models.PaymentTransaction{
			ID:          uuid.New(),
			OrderID:     order.ID,
			Type:        enums.TransactionTypePayment,
			AmountMinor: order.TotalMinor,
			Reference:   NewPaymentReference(),
			Channel:     &channel,
			Status:      enums.TransactionStatusSuccess,
		}
		if err := repo.CreatePaymentTransaction(ctx, txn); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record cash payment")
		}
		return txn, nil
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open payment")
	}
}

func (s *service) afterTransition(ctx context.Context, out transitionOutcome) {
	order := out.order
	if order == nil {
		return
	}
	if out.cancelled {
		s.dispatch(ctx, "order cancelled", func() error {
			return s.notifier.SendOrderCancelled(ctx, order, order.UserID, out.cancelReason)
		})
		return
	}
	if txn := out.paidOnDelivery; txn != nil {
		if s.metrics != nil {
			s.metrics.IncReconciliation("cash_on_delivery", "success")
		}
		details := notifications.PaymentDetails{
			Reference:   txn.Reference,
			AmountMinor: txn.AmountMinor,
			Currency:    order.Currency,
		}
		if txn.Channel != nil {
			details.Channel = *txn.Channel
		}
		s.dispatch(ctx, "payment received", func() error {
			return s.notifier.SendPaymentReceived(ctx, order, order.UserID, details)
		})
		s.dispatch(ctx, "vendor order paid", func() error {
			return s.notifier.NotifyVendors(ctx, enums.NotificationKindVendorOrderPaid, order.ID, out.vendors)
		})
	}
}
