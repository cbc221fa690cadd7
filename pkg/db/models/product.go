package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the vendor listing that orders price against.
type Product struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID             uuid.UUID `gorm:"column:vendor_id;type:uuid;not null"`
	Name                 string    `gorm:"column:name;not null"`
	PriceMinor           int64     `gorm:"column:price_minor;not null"`
	DiscountedPriceMinor *int64    `gorm:"column:discounted_price_minor"`
	UnitsSold            int64     `gorm:"column:units_sold;not null;default:0"`
	IsActive             bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariant is a purchasable combination of a product with its own stock row.
type ProductVariant struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID          uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name               string    `gorm:"column:name;not null"`
	PriceOverrideMinor *int64    `gorm:"column:price_override_minor"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
