package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// ResumeGatewayInit retries hosted checkout initialization for a card order
// that never got a payment reference. Once the attempt budget is spent the
// payment is marked failed and the customer is told.
func (s *service) ResumeGatewayInit(ctx context.Context, orderID uuid.UUID) error {
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !awaitingGatewayInit(order) {
		return nil
	}
	if order.GatewayAttempts >= s.cfg.MaxGatewayAttempts {
		return s.failGatewayInit(ctx, orderID)
	}

	txn, err := s.repo.FindOpenPayment(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "order awaiting gateway init has no open payment")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open payment")
	}

	if _, err := s.initializePayment(ctx, order, txn); err != nil {
		if order.GatewayAttempts >= s.cfg.MaxGatewayAttempts {
			return s.failGatewayInit(ctx, orderID)
		}
		return err
	}
	s.logg.Info(ctx, "gateway initialization resumed")
	return nil
}

func (s *service) failGatewayInit(ctx context.Context, orderID uuid.UUID) error {
	var failed *models.Order
	var txn *models.PaymentTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		if !awaitingGatewayInit(order) {
			return nil
		}
		open, err := repo.FindOpenPayment(ctx, orderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open payment")
		}
		if open != nil {
			if err := repo.UpdatePaymentTransaction(ctx, open.ID, map[string]any{
				"status":         enums.TransactionStatusFailed,
				"failure_reason": reasonGatewayExhausted,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail payment transaction")
			}
			txn = open
		}
		if err := repo.UpdateOrder(ctx, orderID, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail order payment")
		}
		order.PaymentStatus = enums.PaymentStatusFailed
		order.Version++
		failed = order
		return nil
	})
	if err != nil || failed == nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncReconciliation("gateway_sweep", "failed")
	}
	s.logg.Warn(ctx, "gateway initialization abandoned after max attempts")
	details := notifications.PaymentDetails{
		AmountMinor: failed.TotalMinor,
		Currency:    failed.Currency,
		Reason:      reasonGatewayExhausted,
	}
	if txn != nil {
		details.Reference = txn.Reference
	}
	s.dispatch(ctx, "payment failed", func() error {
		return s.notifier.SendPaymentFailed(ctx, failed, failed.UserID, details)
	})
	return nil
}

func awaitingGatewayInit(order *models.Order) bool {
	return order.PaymentMethod.UsesGateway() &&
		order.OrderStatus == enums.OrderStatusPending &&
		order.PaymentStatus == enums.PaymentStatusPending &&
		order.PaymentReference == nil
}
