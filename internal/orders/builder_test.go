package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestBuildPricesLines(t *testing.T) {
	conn := dbtest.Open(t)
	vendorID := uuid.New()
	plain, _ := dbtest.Product(t, conn, vendorID, 1000, 10)
	discounted, _ := dbtest.Product(t, conn, vendorID, 1500, 10)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", discounted.ID).Update("discounted_price_minor", 1200).Error)
	withVariant, _ := dbtest.Product(t, conn, uuid.New(), 900, 0)
	override := int64(1100)
	variant, _ := dbtest.Variant(t, conn, withVariant.ID, &override, 3)

	builder, err := NewBuilder(catalog.NewRepository(conn), FlatPricing{ShippingMinor: 200, TaxRateBps: 750})
	require.NoError(t, err)

	agg, err := builder.Build(context.Background(), BuildInput{
		UserID:            uuid.New(),
		ShippingAddressID: uuid.New(),
		Lines: []LineRequest{
			{ProductID: plain.ID, Quantity: 2},
			{ProductID: discounted.ID, Quantity: 1},
			{ProductID: withVariant.ID, VariantID: &variant.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, agg.Lines, 3)

	assert.Equal(t, int64(2000), agg.Lines[0].SubtotalMinor)
	assert.Equal(t, int64(1200), agg.Lines[1].UnitPriceMinor)
	assert.Equal(t, int64(1100), agg.Lines[2].UnitPriceMinor)
	assert.Equal(t, vendorID, agg.Lines[0].VendorID)

	assert.Equal(t, int64(6500), agg.SubtotalMinor)
	assert.Equal(t, int64(488), agg.TaxMinor)
	assert.Equal(t, agg.SubtotalMinor+agg.ShippingMinor+agg.TaxMinor, agg.TotalMinor)
}

func TestBuildRejectsBadInput(t *testing.T) {
	conn := dbtest.Open(t)
	product, _ := dbtest.Product(t, conn, uuid.New(), 1000, 2)
	inactive, _ := dbtest.Product(t, conn, uuid.New(), 1000, 2)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)
	other, _ := dbtest.Product(t, conn, uuid.New(), 1000, 0)
	foreignVariant, _ := dbtest.Variant(t, conn, other.ID, nil, 5)

	builder, err := NewBuilder(catalog.NewRepository(conn), FlatPricing{})
	require.NoError(t, err)

	cases := []struct {
		name  string
		lines []LineRequest
		code  pkgerrors.Code
	}{
		{"empty", nil, pkgerrors.CodeValidation},
		{"zero quantity", []LineRequest{{ProductID: product.ID}}, pkgerrors.CodeValidation},
		{"duplicate", []LineRequest{{ProductID: product.ID, Quantity: 1}, {ProductID: product.ID, Quantity: 1}}, pkgerrors.CodeValidation},
		{"unknown product", []LineRequest{{ProductID: uuid.New(), Quantity: 1}}, pkgerrors.CodeNotFound},
		{"inactive product", []LineRequest{{ProductID: inactive.ID, Quantity: 1}}, pkgerrors.CodeNotFound},
		{"foreign variant", []LineRequest{{ProductID: product.ID, VariantID: &foreignVariant.ID, Quantity: 1}}, pkgerrors.CodeValidation},
		{"short stock", []LineRequest{{ProductID: product.ID, Quantity: 3}}, pkgerrors.CodeInsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := builder.Build(context.Background(), BuildInput{
				UserID:            uuid.New(),
				ShippingAddressID: uuid.New(),
				Lines:             tc.lines,
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}
