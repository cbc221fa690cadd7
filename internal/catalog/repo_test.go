package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
)

func TestStockLevelPicksVariantOrProductRow(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	product, _ := dbtest.Product(t, conn, uuid.New(), 1000, 7)
	variant, _ := dbtest.Variant(t, conn, product.ID, nil, 2)
	ctx := context.Background()

	stock, err := repo.StockLevel(ctx, product.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stock)

	stock, err = repo.StockLevel(ctx, product.ID, &variant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stock)
}

func TestMissingRecordsMapToErrNotFound(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.GetProduct(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.GetVariant(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))

	missing := uuid.New()
	_, err = repo.StockLevel(ctx, uuid.New(), &missing)
	assert.True(t, errors.Is(err, ErrNotFound))
}
