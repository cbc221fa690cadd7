package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func newStockService(t *testing.T) (*Service, func(vendorID uuid.UUID, stock int64) (uuid.UUID, uuid.UUID)) {
	t.Helper()
	conn := dbtest.Open(t)
	ledger, err := NewLedger(conn, time.Second)
	require.NoError(t, err)
	svc, err := NewService(db.Wrap(conn), NewRetrier(2, time.Millisecond, nil), ledger, catalog.NewRepository(conn), nil)
	require.NoError(t, err)
	seed := func(vendorID uuid.UUID, stock int64) (uuid.UUID, uuid.UUID) {
		product, inv := dbtest.Product(t, conn, vendorID, 1000, stock)
		return product.ID, inv.ID
	}
	return svc, seed
}

func TestServiceAdjustSupplyByOwningVendor(t *testing.T) {
	svc, seed := newStockService(t)
	vendorID := uuid.New()
	productID, inventoryID := seed(vendorID, 4)
	ctx := context.Background()
	op := Operator{UserID: uuid.New(), VendorID: &vendorID}

	snap, err := svc.Adjust(ctx, op, AdjustInput{ProductID: productID, Delta: 6, Reason: enums.InventoryReasonSupply, Note: " restock "})
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.Stock)
	assert.Equal(t, inventoryID, snap.InventoryID)

	history, err := svc.History(ctx, op, StockKey{ProductID: productID})
	require.NoError(t, err)
	require.Len(t, history.History, 1)
	row := history.History[0]
	assert.Equal(t, int64(6), row.Adjustment)
	require.NotNil(t, row.Note)
	assert.Equal(t, "restock", *row.Note)
	require.NotNil(t, row.ActorID)
	assert.Equal(t, op.UserID, *row.ActorID)
}

func TestServiceAdjustManualCannotGoNegative(t *testing.T) {
	svc, seed := newStockService(t)
	productID, _ := seed(uuid.New(), 2)

	_, err := svc.Adjust(context.Background(), Operator{UserID: uuid.New(), Admin: true}, AdjustInput{ProductID: productID, Delta: -3, Reason: enums.InventoryReasonManual})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
}

func TestServiceRejectsForeignVendor(t *testing.T) {
	svc, seed := newStockService(t)
	productID, _ := seed(uuid.New(), 2)
	other := uuid.New()
	op := Operator{UserID: uuid.New(), VendorID: &other}

	_, err := svc.Adjust(context.Background(), op, AdjustInput{ProductID: productID, Delta: 1, Reason: enums.InventoryReasonSupply})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.History(context.Background(), op, StockKey{ProductID: productID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestServiceUnknownProduct(t *testing.T) {
	svc, _ := newStockService(t)
	_, err := svc.Adjust(context.Background(), Operator{Admin: true}, AdjustInput{ProductID: uuid.New(), Delta: 1, Reason: enums.InventoryReasonSupply})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceRejectsOrderReasons(t *testing.T) {
	svc, seed := newStockService(t)
	productID, _ := seed(uuid.New(), 2)
	_, err := svc.Adjust(context.Background(), Operator{Admin: true}, AdjustInput{ProductID: productID, Delta: 1, Reason: enums.InventoryReasonCancellationRestore})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
