package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
	Email    string
}

func (a Actor) IsAdmin() bool { return a.Role == enums.ActorRoleAdmin }

func (a Actor) IsVendor() bool { return a.Role == enums.ActorRoleVendor && a.VendorID != nil }

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: enums.ActorRoleAdmin}

// OrderView is the API shape of an order.
type OrderView struct {
	ID               uuid.UUID           `json:"id"`
	UserID           uuid.UUID           `json:"user_id"`
	OrderStatus      enums.OrderStatus   `json:"order_status"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	PaymentReference *string             `json:"payment_reference,omitempty"`
	Currency         string              `json:"currency"`
	SubtotalMinor    int64               `json:"subtotal_minor"`
	ShippingMinor    int64               `json:"shipping_minor"`
	TaxMinor         int64               `json:"tax_minor"`
	TotalMinor       int64               `json:"total_minor"`
	Total            string              `json:"total"`
	Version          int                 `json:"version"`
	CancelReason     *string             `json:"cancel_reason,omitempty"`
	ShippingAddress  *uuid.UUID          `json:"shipping_address_id,omitempty"`
	Notes            *string             `json:"notes,omitempty"`
	Items            []ItemView          `json:"items"`
	PlacedAt         time.Time           `json:"placed_at"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	CancelledAt      *time.Time          `json:"cancelled_at,omitempty"`
	ShippedAt        *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time          `json:"delivered_at,omitempty"`
}

// ItemView is one line of an order.
type ItemView struct {
	ID             uuid.UUID         `json:"id"`
	ProductID      uuid.UUID         `json:"product_id"`
	VariantID      *uuid.UUID        `json:"variant_id,omitempty"`
	VendorID       uuid.UUID         `json:"vendor_id"`
	Quantity       int64             `json:"quantity"`
	UnitPriceMinor int64             `json:"unit_price_minor"`
	SubtotalMinor  int64             `json:"subtotal_minor"`
	Subtotal       string            `json:"subtotal"`
	Status         enums.OrderStatus `json:"status"`
}

// OrderSummary is a list entry without items.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	OrderStatus   enums.OrderStatus   `json:"order_status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Currency      string              `json:"currency"`
	TotalMinor    int64               `json:"total_minor"`
	Total         string              `json:"total"`
	PlacedAt      time.Time           `json:"placed_at"`
}

// OrderList is a page of the caller's orders.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// CreateResult is returned by Create and RetryPayment.
type CreateResult struct {
	Order              *OrderView `json:"order"`
	AuthorizationURL   string     `json:"authorization_url,omitempty"`
	PaymentInitPending bool       `json:"payment_init_pending"`
}

// toView renders order state. A non-nil vendorID limits the items to that
// vendor's lines.
func toView(order *models.Order, items []models.OrderItem, detail *models.OrderDetail, vendorID *uuid.UUID) *OrderView {
	view := &OrderView{
		ID:               order.ID,
		UserID:           order.UserID,
		OrderStatus:      order.OrderStatus,
		PaymentStatus:    order.PaymentStatus,
		PaymentMethod:    order.PaymentMethod,
		PaymentReference: order.PaymentReference,
		Currency:         order.Currency,
		TotalMinor:       order.TotalMinor,
		Total:            FormatMinor(order.TotalMinor),
		Version:          order.Version,
		CancelReason:     order.CancelReason,
		Items:            make([]ItemView, 0, len(items)),
		PlacedAt:         order.PlacedAt,
		PaidAt:           order.PaidAt,
		CancelledAt:      order.CancelledAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
	}
	if detail != nil {
		view.ShippingMinor = detail.ShippingMinor
		view.TaxMinor = detail.TaxMinor
		view.Notes = detail.Notes
		addr := detail.ShippingAddressID
		view.ShippingAddress = &addr
	}
	for _, item := range items {
		view.SubtotalMinor += item.SubtotalMinor
		if vendorID != nil && item.VendorID != *vendorID {
			continue
		}
		view.Items = append(view.Items, ItemView{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			VendorID:       item.VendorID,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
			SubtotalMinor:  item.SubtotalMinor,
			Subtotal:       FormatMinor(item.SubtotalMinor),
			Status:         item.Status,
		})
	}
	return view
}

func toSummary(order models.Order) OrderSummary {
	return OrderSummary{
		ID:            order.ID,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		Currency:      order.Currency,
		TotalMinor:    order.TotalMinor,
		Total:         FormatMinor(order.TotalMinor),
		PlacedAt:      order.PlacedAt,
	}
}
