// Package dbtest opens throwaway sqlite databases carrying the commerce schema.
// The DDL mirrors the goose migrations minus Postgres enum types and defaults.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price_minor INTEGER NOT NULL CHECK (price_minor >= 0),
		discounted_price_minor INTEGER,
		units_sold INTEGER NOT NULL DEFAULT 0 CHECK (units_sold >= 0),
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		name TEXT NOT NULL,
		price_override_minor INTEGER,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE inventories (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		variant_id TEXT REFERENCES product_variants(id),
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		last_supply_id TEXT,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX inventories_product_level_key ON inventories (product_id) WHERE variant_id IS NULL`,
	`CREATE UNIQUE INDEX inventories_variant_key ON inventories (product_id, variant_id) WHERE variant_id IS NOT NULL`,
	`CREATE TABLE inventory_history (
		id TEXT PRIMARY KEY,
		inventory_id TEXT NOT NULL REFERENCES inventories(id),
		product_id TEXT NOT NULL,
		variant_id TEXT,
		previous_stock INTEGER NOT NULL,
		new_stock INTEGER NOT NULL,
		adjustment INTEGER NOT NULL,
		reason TEXT NOT NULL,
		reference_id TEXT,
		actor_id TEXT,
		note TEXT,
		seq INTEGER NOT NULL,
		created_at DATETIME,
		CHECK (new_stock = previous_stock + adjustment),
		UNIQUE (inventory_id, seq)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		total_minor INTEGER NOT NULL CHECK (total_minor >= 0),
		currency TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		order_status TEXT NOT NULL DEFAULT 'pending',
		payment_method TEXT NOT NULL,
		payment_reference TEXT UNIQUE,
		authorization_url TEXT,
		gateway_attempts INTEGER NOT NULL DEFAULT 0,
		cancel_reason TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		placed_at DATETIME NOT NULL,
		paid_at DATETIME,
		cancelled_at DATETIME,
		shipped_at DATETIME,
		delivered_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL,
		variant_id TEXT,
		vendor_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_minor INTEGER NOT NULL,
		subtotal_minor INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_details (
		order_id TEXT PRIMARY KEY REFERENCES orders(id),
		shipping_address_id TEXT NOT NULL,
		shipping_minor INTEGER NOT NULL DEFAULT 0,
		tax_minor INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE payment_transactions (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		type TEXT NOT NULL,
		amount_minor INTEGER NOT NULL CHECK (amount_minor >= 0),
		reference TEXT NOT NULL UNIQUE,
		channel TEXT,
		status TEXT NOT NULL,
		failure_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX payment_transactions_one_success_per_order
		ON payment_transactions (order_id) WHERE type = 'payment' AND status = 'success'`,
}

// Open returns a private in-memory database with the schema applied. A single
// connection serializes transactions, which keeps lock-sensitive tests
// deterministic.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:bazaar_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Product seeds an active product with a product-level inventory row.
func Product(t testing.TB, conn *gorm.DB, vendorID uuid.UUID, priceMinor, stock int64) (*models.Product, *models.Inventory) {
	t.Helper()

	product := &models.Product{
		ID:         uuid.New(),
		VendorID:   vendorID,
		Name:       "product " + uuid.NewString()[:8],
		PriceMinor: priceMinor,
		IsActive:   true,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	inv := &models.Inventory{ID: uuid.New(), ProductID: product.ID, Stock: stock}
	if err := conn.Create(inv).Error; err != nil {
		t.Fatalf("create inventory: %v", err)
	}
	return product, inv
}

// Variant seeds a variant of productID with its own inventory row.
func Variant(t testing.TB, conn *gorm.DB, productID uuid.UUID, override *int64, stock int64) (*models.ProductVariant, *models.Inventory) {
	t.Helper()

	variant := &models.ProductVariant{
		ID:                 uuid.New(),
		ProductID:          productID,
		Name:               "variant " + uuid.NewString()[:8],
		PriceOverrideMinor: override,
	}
	if err := conn.Create(variant).Error; err != nil {
		t.Fatalf("create variant: %v", err)
	}
	inv := &models.Inventory{ID: uuid.New(), ProductID: productID, VariantID: &variant.ID, Stock: stock}
	if err := conn.Create(inv).Error; err != nil {
		t.Fatalf("create variant inventory: %v", err)
	}
	return variant, inv
}

// Stock reads the current stock of an inventory row.
func Stock(t testing.TB, conn *gorm.DB, inventoryID uuid.UUID) int64 {
	t.Helper()
	var inv models.Inventory
	if err := conn.First(&inv, "id = ?", inventoryID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return inv.Stock
}

// UnitsSold reads the units sold counter of a product.
func UnitsSold(t testing.TB, conn *gorm.DB, productID uuid.UUID) int64 {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.UnitsSold
}
