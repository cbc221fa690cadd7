package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_inventories": {
			"CREATE TABLE IF NOT EXISTS inventories",
			"CHECK (stock >= 0)",
			"ON inventories (product_id) WHERE variant_id IS NULL",
			"ON inventories (product_id, variant_id) WHERE variant_id IS NOT NULL",
			"CHECK (new_stock = previous_stock + adjustment)",
			"UNIQUE (inventory_id, seq)",
			"DROP TABLE IF EXISTS inventories",
		},
		"create_orders": {
			"CREATE TABLE IF NOT EXISTS orders",
			"ON orders (payment_reference) WHERE payment_reference IS NOT NULL",
			"CHECK (quantity > 0)",
			"CHECK (subtotal_minor = unit_price_minor * quantity)",
			"DROP TABLE IF EXISTS orders",
		},
		"create_payment_transactions": {
			"UNIQUE (reference)",
			"WHERE type = 'payment' AND status = 'success'",
			"DROP TABLE IF EXISTS payment_transactions",
		},
		"create_commerce_enums": {
			"CREATE TYPE order_status AS ENUM ('pending', 'processing', 'shipped', 'delivered', 'cancelled')",
			"CREATE TYPE inventory_reason AS ENUM ('order_placement', 'cancellation_restore', 'supply', 'manual')",
		},
	}

	for suffix, checks := range cases {
		t.Run(suffix, func(t *testing.T) {
			content := readMigration(t, suffix)
			for _, sub := range checks {
				if !strings.Contains(content, sub) {
					t.Errorf("missing expected statement %q", sub)
				}
			}
		})
	}
}
