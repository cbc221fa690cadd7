package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Order is the buyer-facing aggregate. Rows are never deleted; cancellation is a
// status change.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	CustomerEmail    string              `gorm:"column:customer_email;not null"`
	TotalMinor       int64               `gorm:"column:total_minor;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	OrderStatus      enums.OrderStatus   `gorm:"column:order_status;type:order_status;not null;default:'pending'"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentReference *string             `gorm:"column:payment_reference"`
	AuthorizationURL *string             `gorm:"column:authorization_url"`
	GatewayAttempts  int                 `gorm:"column:gateway_attempts;not null;default:0"`
	CancelReason     *string             `gorm:"column:cancel_reason"`
	Version          int                 `gorm:"column:version;not null;default:1"`
	PlacedAt         time.Time           `gorm:"column:placed_at;not null"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`
	ShippedAt        *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time          `gorm:"column:delivered_at"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem freezes the price of one purchased line. Only Status changes after insert.
type OrderItem struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID        `gorm:"column:variant_id;type:uuid"`
	VendorID       uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null"`
	Quantity       int64             `gorm:"column:quantity;not null"`
	UnitPriceMinor int64             `gorm:"column:unit_price_minor;not null"`
	SubtotalMinor  int64             `gorm:"column:subtotal_minor;not null"`
	Status         enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderDetail carries shipping and tax for an order, one-to-one.
type OrderDetail struct {
	OrderID           uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	ShippingAddressID uuid.UUID `gorm:"column:shipping_address_id;type:uuid;not null"`
	ShippingMinor     int64     `gorm:"column:shipping_minor;not null;default:0"`
	TaxMinor          int64     `gorm:"column:tax_minor;not null;default:0"`
	Notes             *string   `gorm:"column:notes"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
