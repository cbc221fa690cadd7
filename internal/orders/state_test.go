package orders

import (
	"testing"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]enums.OrderStatus{
		{enums.OrderStatusPending, enums.OrderStatusProcessing},
		{enums.OrderStatusPending, enums.OrderStatusCancelled},
		{enums.OrderStatusProcessing, enums.OrderStatusShipped},
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered},
	}
	for _, edge := range allowed {
		if !CanTransition(edge[0], edge[1]) {
			t.Fatalf("expected %s -> %s to be allowed", edge[0], edge[1])
		}
	}

	denied := [][2]enums.OrderStatus{
		{enums.OrderStatusPending, enums.OrderStatusShipped},
		{enums.OrderStatusShipped, enums.OrderStatusCancelled},
		{enums.OrderStatusDelivered, enums.OrderStatusPending},
		{enums.OrderStatusCancelled, enums.OrderStatusPending},
		{enums.OrderStatusCancelled, enums.OrderStatusProcessing},
	}
	for _, edge := range denied {
		if CanTransition(edge[0], edge[1]) {
			t.Fatalf("expected %s -> %s to be rejected", edge[0], edge[1])
		}
	}
}

func TestCheckTransitionPaymentPreconditions(t *testing.T) {
	card := &models.Order{PaymentMethod: enums.PaymentMethodCard, PaymentStatus: enums.PaymentStatusPending}
	if err := checkTransition(card, enums.OrderStatusPending, enums.OrderStatusProcessing); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected unpaid card order to be blocked, got %v", err)
	}

	cod := &models.Order{PaymentMethod: enums.PaymentMethodCashOnDelivery, PaymentStatus: enums.PaymentStatusPending}
	if err := checkTransition(cod, enums.OrderStatusPending, enums.OrderStatusProcessing); err != nil {
		t.Fatalf("expected cash on delivery order to proceed, got %v", err)
	}

	failed := &models.Order{PaymentMethod: enums.PaymentMethodCashOnDelivery, PaymentStatus: enums.PaymentStatusFailed}
	if err := checkTransition(failed, enums.OrderStatusProcessing, enums.OrderStatusShipped); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected failed payment to block shipping, got %v", err)
	}
}
