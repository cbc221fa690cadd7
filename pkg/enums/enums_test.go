package enums

import "testing"

func TestParseKnownValues(t *testing.T) {
	cases := []struct {
		name  string
		parse func(string) error
		ok    []string
	}{
		{"actor role", func(v string) error { _, err := ParseActorRole(v); return err }, []string{"customer", "vendor", "admin"}},
		{"order status", func(v string) error { _, err := ParseOrderStatus(v); return err }, []string{"pending", "processing", "shipped", "delivered", "cancelled"}},
		{"payment status", func(v string) error { _, err := ParsePaymentStatus(v); return err }, []string{"pending", "paid", "failed"}},
		{"payment method", func(v string) error { _, err := ParsePaymentMethod(v); return err }, []string{"card", "cash_on_delivery"}},
		{"transaction status", func(v string) error { _, err := ParseTransactionStatus(v); return err }, []string{"initiated", "pending", "success", "failed"}},
		{"transaction type", func(v string) error { _, err := ParseTransactionType(v); return err }, []string{"payment", "refund"}},
		{"inventory reason", func(v string) error { _, err := ParseInventoryReason(v); return err }, []string{"order_placement", "cancellation_restore", "supply", "manual"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, v := range tc.ok {
				if err := tc.parse(v); err != nil {
					t.Fatalf("parse %q: %v", v, err)
				}
			}
			if err := tc.parse("bogus"); err == nil {
				t.Fatalf("expected error for unknown value")
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	if !OrderStatusShipped.IsValid() || OrderStatus("returned").IsValid() {
		t.Fatalf("order status validity mismatch")
	}
	if !ActorRoleVendor.IsValid() || ActorRole("agent").IsValid() {
		t.Fatalf("actor role validity mismatch")
	}
}

func TestPaymentPredicates(t *testing.T) {
	if !PaymentMethodCard.UsesGateway() || PaymentMethodCashOnDelivery.UsesGateway() {
		t.Fatalf("only card orders go through the gateway")
	}
	if !PaymentMethodCashOnDelivery.SettlesOnDelivery() || PaymentMethodCard.SettlesOnDelivery() {
		t.Fatalf("only cash on delivery settles at handover")
	}
	if !PaymentStatusFailed.BlocksFulfillment() || PaymentStatusPending.BlocksFulfillment() || PaymentStatusPaid.BlocksFulfillment() {
		t.Fatalf("only failed payments block fulfillment")
	}
}
