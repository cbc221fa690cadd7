package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// PricingPolicy supplies shipping and tax for an aggregate. Implementations
// must be deterministic for the same lines.
type PricingPolicy interface {
	Quote(ctx context.Context, subtotalMinor int64, lines []Line) (shippingMinor, taxMinor int64, err error)
}

// FlatPricing charges one shipping fee per order and a basis-point tax on the
// item subtotal, rounded half away from zero.
type FlatPricing struct {
	ShippingMinor int64
	TaxRateBps    int64
}

var basisPoints = decimal.NewFromInt(10_000)

func (p FlatPricing) Quote(_ context.Context, subtotalMinor int64, _ []Line) (int64, int64, error) {
	if subtotalMinor <= 0 {
		return 0, 0, nil
	}
	tax := decimal.NewFromInt(subtotalMinor).
		Mul(decimal.NewFromInt(p.TaxRateBps)).
		Div(basisPoints).
		Round(0).
		IntPart()
	return p.ShippingMinor, tax, nil
}

// FormatMinor renders minor units with two decimal places, e.g. 2200 -> "22.00".
func FormatMinor(amountMinor int64) string {
	return decimal.New(amountMinor, -2).StringFixed(2)
}
