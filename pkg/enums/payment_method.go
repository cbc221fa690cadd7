package enums

import "fmt"

// PaymentMethod captures how the buyer intends to pay.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodCashOnDelivery,
}

func (p PaymentMethod) String() string {
	return string(p)
}

// UsesGateway reports whether orders paid this way are initialized at the
// payment gateway. Cash on delivery settles when the order is delivered.
func (p PaymentMethod) UsesGateway() bool {
	return p == PaymentMethodCard
}

// SettlesOnDelivery reports whether payment is collected at handover, so the
// order may be fulfilled before it is paid.
func (p PaymentMethod) SettlesOnDelivery() bool {
	return p == PaymentMethodCashOnDelivery
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
