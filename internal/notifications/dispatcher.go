// Package notifications publishes customer and vendor notification requests.
// Delivery and rendering happen downstream; callers treat every send as
// best-effort and only log failures.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Dispatcher is the outbound notification surface used by the order lifecycle
// and payment reconciliation.
type Dispatcher interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order, userID uuid.UUID) error
	SendPaymentReceived(ctx context.Context, order *models.Order, userID uuid.UUID, details PaymentDetails) error
	SendPaymentFailed(ctx context.Context, order *models.Order, userID uuid.UUID, details PaymentDetails) error
	SendOrderCancelled(ctx context.Context, order *models.Order, userID uuid.UUID, reason string) error
	NotifyVendors(ctx context.Context, kind enums.NotificationKind, orderID uuid.UUID, vendorIDs []uuid.UUID) error
}

// PaymentDetails describes the payment outcome a customer is told about.
type PaymentDetails struct {
	Reference   string `json:"reference"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Channel     string `json:"channel,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Message is the envelope written to the notification topic.
type Message struct {
	ID          uuid.UUID              `json:"id"`
	Kind        enums.NotificationKind `json:"kind"`
	OrderID     uuid.UUID              `json:"order_id"`
	RecipientID uuid.UUID              `json:"recipient_id"`
	Email       string                 `json:"email,omitempty"`
	Order       *OrderSummary          `json:"order,omitempty"`
	Payment     *PaymentDetails        `json:"payment,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// OrderSummary is the slice of order state a template needs.
type OrderSummary struct {
	TotalMinor    int64  `json:"total_minor"`
	Currency      string `json:"currency"`
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`
}

func summarize(order *models.Order) *OrderSummary {
	if order == nil {
		return nil
	}
	return &OrderSummary{
		TotalMinor:    order.TotalMinor,
		Currency:      order.Currency,
		OrderStatus:   string(order.OrderStatus),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
	}
}

// build assembles the customer-facing messages. Vendor fan-out produces one
// message per vendor.
func build(kind enums.NotificationKind, order *models.Order, userID uuid.UUID, now time.Time) Message {
	msg := Message{
		ID:          uuid.New(),
		Kind:        kind,
		RecipientID: userID,
		Order:       summarize(order),
		OccurredAt:  now.UTC(),
	}
	if order != nil {
		msg.OrderID = order.ID
		msg.Email = order.CustomerEmail
	}
	return msg
}

func vendorMessages(kind enums.NotificationKind, orderID uuid.UUID, vendorIDs []uuid.UUID, now time.Time) []Message {
	seen := make(map[uuid.UUID]struct{}, len(vendorIDs))
	out := make([]Message, 0, len(vendorIDs))
	for _, vendorID := range vendorIDs {
		if vendorID == uuid.Nil {
			continue
		}
		if _, ok := seen[vendorID]; ok {
			continue
		}
		seen[vendorID] = struct{}{}
		out = append(out, Message{
			ID:          uuid.New(),
			Kind:        kind,
			OrderID:     orderID,
			RecipientID: vendorID,
			OccurredAt:  now.UTC(),
		})
	}
	return out
}
