package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// repository holds the raw statements behind the ledger. It is unexported so the
// only way to move stock is through Ledger.
type repository struct {
	db *gorm.DB
}

func newRepository(db *gorm.DB) *repository {
	return &repository{db: db}
}

func scopeKey(db *gorm.DB, key StockKey) *gorm.DB {
	db = db.Where("product_id = ?", key.ProductID)
	if key.VariantID == nil {
		return db.Where("variant_id IS NULL")
	}
	return db.Where("variant_id = ?", *key.VariantID)
}

func (r *repository) lock(ctx context.Context, key StockKey) (*models.Inventory, error) {
	var row models.Inventory
	err := scopeKey(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), key).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) find(ctx context.Context, key StockKey) (*models.Inventory, error) {
	var row models.Inventory
	if err := scopeKey(r.db.WithContext(ctx), key).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) create(ctx context.Context, row *models.Inventory) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// shift moves stock by delta and reports whether the guarded update matched.
// Decrements only apply while enough stock remains.
func (r *repository) shift(ctx context.Context, inventoryID uuid.UUID, delta int64, now time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Inventory{}).Where("id = ?", inventoryID)
	if delta < 0 {
		q = q.Where("stock >= ?", -delta)
	}
	res := q.Updates(map[string]any{
		"stock":      gorm.Expr("stock + ?", delta),
		"updated_at": now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) setLastSupply(ctx context.Context, inventoryID, historyID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Inventory{}).
		Where("id = ?", inventoryID).
		Update("last_supply_id", historyID).Error
}

func (r *repository) nextSeq(ctx context.Context, inventoryID uuid.UUID) (int64, error) {
	var last int64
	err := r.db.WithContext(ctx).Model(&models.InventoryHistory{}).
		Where("inventory_id = ?", inventoryID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (r *repository) appendHistory(ctx context.Context, row *models.InventoryHistory) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// addUnitsSold never lets the counter drop below zero.
func (r *repository) addUnitsSold(ctx context.Context, productID uuid.UUID, delta int64) error {
	expr := gorm.Expr("units_sold + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN units_sold >= ? THEN units_sold - ? ELSE 0 END", -delta, -delta)
	}
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Update("units_sold", expr).Error
}

func (r *repository) history(ctx context.Context, inventoryID uuid.UUID) ([]models.InventoryHistory, error) {
	var rows []models.InventoryHistory
	if err := r.db.WithContext(ctx).
		Where("inventory_id = ?", inventoryID).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
