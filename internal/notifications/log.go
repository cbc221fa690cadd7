package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// LogDispatcher writes notifications to the structured log. It backs local runs
// without brokers.
type LogDispatcher struct {
	logg *logger.Logger
	now  func() time.Time
}

func NewLogDispatcher(logg *logger.Logger) *LogDispatcher {
	return &LogDispatcher{logg: logg, now: time.Now}
}

func (d *LogDispatcher) SendOrderConfirmation(ctx context.Context, order *models.Order, userID uuid.UUID) error {
	d.emit(ctx, build(enums.NotificationKindOrderConfirmation, order, userID, d.now()))
	return nil
}

func (d *LogDispatcher) SendPaymentReceived(ctx context.Context, order *models.Order, userID uuid.UUID, details PaymentDetails) error {
	msg := build(enums.NotificationKindPaymentReceived, order, userID, d.now())
	msg.Payment = &details
	d.emit(ctx, msg)
	return nil
}

func (d *LogDispatcher) SendPaymentFailed(ctx context.Context, order *models.Order, userID uuid.UUID, details PaymentDetails) error {
	msg := build(enums.NotificationKindPaymentFailed, order, userID, d.now())
	msg.Payment = &details
	d.emit(ctx, msg)
	return nil
}

func (d *LogDispatcher) SendOrderCancelled(ctx context.Context, order *models.Order, userID uuid.UUID, reason string) error {
	msg := build(enums.NotificationKindOrderCancelled, order, userID, d.now())
	msg.Reason = reason
	d.emit(ctx, msg)
	return nil
}

func (d *LogDispatcher) NotifyVendors(ctx context.Context, kind enums.NotificationKind, orderID uuid.UUID, vendorIDs []uuid.UUID) error {
	for _, msg := range vendorMessages(kind, orderID, vendorIDs, d.now()) {
		d.emit(ctx, msg)
	}
	return nil
}

func (d *LogDispatcher) emit(ctx context.Context, msg Message) {
	if d.logg == nil {
		return
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"notification_kind": msg.Kind,
		"order_id":          msg.OrderID.String(),
		"recipient_id":      msg.RecipientID.String(),
	})
	d.logg.Info(ctx, "notification dispatched")
}
