package orders

import (
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// forward lists the fulfillment moves allowed from each status. Cancelled and
// delivered are terminal.
var forward = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range forward[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsCancellable reports whether an order or item in status may still be cancelled.
func IsCancellable(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPending || status == enums.OrderStatusProcessing
}

// checkTransition applies the state machine plus the payment preconditions an
// operator move has to satisfy. from is the status of the order or item moving.
func checkTransition(order *models.Order, from, to enums.OrderStatus) error {
	if !CanTransition(from, to) {
		return invalidTransition(from, to, "transition not allowed")
	}
	switch to {
	case enums.OrderStatusProcessing:
		if order.PaymentStatus != enums.PaymentStatusPaid && !order.PaymentMethod.SettlesOnDelivery() {
			return invalidTransition(from, to, "order is not paid")
		}
	case enums.OrderStatusShipped, enums.OrderStatusDelivered:
		if order.PaymentStatus.BlocksFulfillment() {
			return invalidTransition(from, to, "payment failed")
		}
	}
	return nil
}

func invalidTransition(from, to enums.OrderStatus, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, reason).WithDetails(map[string]any{
		"from": from,
		"to":   to,
	})
}
