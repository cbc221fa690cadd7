package enums

import "fmt"

// NotificationKind names a notification request published for downstream delivery.
type NotificationKind string

const (
	NotificationKindOrderConfirmation NotificationKind = "order_confirmation"
	NotificationKindPaymentReceived   NotificationKind = "payment_received"
	NotificationKindPaymentFailed     NotificationKind = "payment_failed"
	NotificationKindOrderCancelled    NotificationKind = "order_cancelled"
	NotificationKindVendorNewOrder    NotificationKind = "vendor_new_order"
	NotificationKindVendorOrderPaid   NotificationKind = "vendor_order_paid"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrderConfirmation,
	NotificationKindPaymentReceived,
	NotificationKindPaymentFailed,
	NotificationKindOrderCancelled,
	NotificationKindVendorNewOrder,
	NotificationKindVendorOrderPaid,
}

// String implements fmt.Stringer.
func (n NotificationKind) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationKind.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
