// Package catalog reads the product data orders are priced and stocked against.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// ErrNotFound is returned when a product, variant or stock row is missing.
var ErrNotFound = errors.New("catalog record not found")

// Repository exposes read-only catalog lookups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	StockLevel(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&product).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (r *repository) GetVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&variant).Error; err != nil {
		return nil, translate(err)
	}
	return &variant, nil
}

// StockLevel reads the variant row when variantID is set, otherwise the
// product-level row. The value is advisory; the ledger re-checks under lock.
func (r *repository) StockLevel(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Inventory{}).Where("product_id = ?", productID)
	if variantID == nil {
		q = q.Where("variant_id IS NULL")
	} else {
		q = q.Where("variant_id = ?", *variantID)
	}
	var row models.Inventory
	if err := q.Take(&row).Error; err != nil {
		return 0, translate(err)
	}
	return row.Stock, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
