package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Inventory holds the stock counter for a product, or for one of its variants
// when VariantID is set.
type Inventory struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID    uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID    *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Stock        int64      `gorm:"column:stock;not null;default:0"`
	LastSupplyID *uuid.UUID `gorm:"column:last_supply_id;type:uuid"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Inventory) TableName() string { return "inventories" }

// InventoryHistory is an append-only stock adjustment entry. Seq is dense per
// inventory row and assigned while the row lock is held.
type InventoryHistory struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InventoryID   uuid.UUID             `gorm:"column:inventory_id;type:uuid;not null"`
	ProductID     uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	VariantID     *uuid.UUID            `gorm:"column:variant_id;type:uuid"`
	PreviousStock int64                 `gorm:"column:previous_stock;not null"`
	NewStock      int64                 `gorm:"column:new_stock;not null"`
	Adjustment    int64                 `gorm:"column:adjustment;not null"`
	Reason        enums.InventoryReason `gorm:"column:reason;type:inventory_reason;not null"`
	ReferenceID   *uuid.UUID            `gorm:"column:reference_id;type:uuid"`
	ActorID       *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Note          *string               `gorm:"column:note"`
	Seq           int64                 `gorm:"column:seq;not null"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryHistory) TableName() string { return "inventory_history" }
