package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

type publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

type notificationMetrics interface {
	IncNotification(kind, result string)
}

// KafkaDispatcher serializes messages onto the notification topic keyed by order
// id, so all messages for one order stay ordered.
type KafkaDispatcher struct {
	producer publisher
	metrics  notificationMetrics
	now      func() time.Time
}

func NewKafkaDispatcher(producer publisher, metrics notificationMetrics) (*KafkaDispatcher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer required")
	}
	return &KafkaDispatcher{producer: producer, metrics: metrics, now: time.Now}, nil
}

func (d *KafkaDispatcher) SendOrderConfirmation(ctx context.Context, order *models.Order, userID uuid.UUID) error {
	return d.publish(build(enums.NotificationKindOrderConfirmation, order, userID, d.now()))
}

func (d *KafkaDispatcher) SendPaymentReceived(ctx context.Context, order *models.Order, userID uuid.UUID, details PaymentDetails) error {
	msg := build(enums.NotificationKindPaymentReceived, order, userID, d.now())
	msg.Payment = &details
	return d.publish(msg)
}

func (d *KafkaDispatcher) SendPaymentFailed(ctx context.Context, order *models.Order, userID uuid.UUID, details PaymentDetails) error {
	msg := build(enums.NotificationKindPaymentFailed, order, userID, d.now())
	msg.Payment = &details
	return d.publish(msg)
}

func (d *KafkaDispatcher) SendOrderCancelled(ctx context.Context, order *models.Order, userID uuid.UUID, reason string) error {
	msg := build(enums.NotificationKindOrderCancelled, order, userID, d.now())
	msg.Reason = reason
	return d.publish(msg)
}

func (d *KafkaDispatcher) NotifyVendors(ctx context.Context, kind enums.NotificationKind, orderID uuid.UUID, vendorIDs []uuid.UUID) error {
	if !kind.IsValid() {
		return fmt.Errorf("invalid notification kind %q", kind)
	}
	var errs error
	for _, msg := range vendorMessages(kind, orderID, vendorIDs, d.now()) {
		errs = multierr.Append(errs, d.publish(msg))
	}
	return errs
}

func (d *KafkaDispatcher) publish(msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		d.record(msg.Kind, "error")
		return fmt.Errorf("encode notification: %w", err)
	}
	headers := []kafka.Header{{Key: "kind", Value: []byte(msg.Kind)}}
	if err := d.producer.Publish([]byte(msg.OrderID.String()), value, headers...); err != nil {
		d.record(msg.Kind, "dropped")
		return fmt.Errorf("publish %s notification: %w", msg.Kind, err)
	}
	d.record(msg.Kind, "queued")
	return nil
}

func (d *KafkaDispatcher) record(kind enums.NotificationKind, result string) {
	if d.metrics != nil {
		d.metrics.IncNotification(string(kind), result)
	}
}
