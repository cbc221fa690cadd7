package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// LineRequest is one requested purchase line.
type LineRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int64      `json:"quantity" validate:"required,gt=0"`
}

// BuildInput is what the builder prices and stock-checks.
type BuildInput struct {
	UserID            uuid.UUID
	ShippingAddressID uuid.UUID
	Lines             []LineRequest
}

// Line is a priced line with the vendor it belongs to.
type Line struct {
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	VendorID       uuid.UUID
	Quantity       int64
	UnitPriceMinor int64
	SubtotalMinor  int64
}

// Aggregate is the in-memory order the lifecycle persists.
type Aggregate struct {
	Lines         []Line
	SubtotalMinor int64
	ShippingMinor int64
	TaxMinor      int64
	TotalMinor    int64
}

// Builder validates and prices a request without writing anything.
type Builder struct {
	catalog catalog.Repository
	pricing PricingPolicy
}

func NewBuilder(catalogRepo catalog.Repository, pricing PricingPolicy) (*Builder, error) {
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if pricing == nil {
		return nil, fmt.Errorf("pricing policy required")
	}
	return &Builder{catalog: catalogRepo, pricing: pricing}, nil
}

type lineKey struct {
	product uuid.UUID
	variant uuid.UUID
}

func (b *Builder) Build(ctx context.Context, input BuildInput) (*Aggregate, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ShippingAddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}

	seen := make(map[lineKey]struct{}, len(input.Lines))
	for i, req := range input.Lines {
		if req.ProductID == uuid.Nil {
			return nil, lineError(i, "product id is required")
		}
		if req.Quantity <= 0 {
			return nil, lineError(i, "quantity must be positive")
		}
		key := lineKey{product: req.ProductID}
		if req.VariantID != nil {
			key.variant = *req.VariantID
		}
		if _, dup := seen[key]; dup {
			return nil, lineError(i, "duplicate product line")
		}
		seen[key] = struct{}{}
	}

	agg := &Aggregate{Lines: make([]Line, 0, len(input.Lines))}
	for i, req := range input.Lines {
		line, err := b.priceLine(ctx, i, req)
		if err != nil {
			return nil, err
		}
		agg.Lines = append(agg.Lines, *line)
		agg.SubtotalMinor += line.SubtotalMinor
	}

	shipping, tax, err := b.pricing.Quote(ctx, agg.SubtotalMinor, agg.Lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "quote shipping and tax")
	}
	agg.ShippingMinor = shipping
	agg.TaxMinor = tax
	agg.TotalMinor = agg.SubtotalMinor + shipping + tax
	return agg, nil
}

func (b *Builder) priceLine(ctx context.Context, index int, req LineRequest) (*Line, error) {
	product, err := b.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, catalogError(err, "product not found", req.ProductID)
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": req.ProductID.String()})
	}

	price := product.PriceMinor
	if product.DiscountedPriceMinor != nil {
		price = *product.DiscountedPriceMinor
	}

	if req.VariantID != nil {
		variant, err := b.catalog.GetVariant(ctx, *req.VariantID)
		if err != nil {
			return nil, catalogError(err, "variant not found", *req.VariantID)
		}
		if variant.ProductID != product.ID {
			return nil, lineError(index, "variant does not belong to product")
		}
		if variant.PriceOverrideMinor != nil {
			price = *variant.PriceOverrideMinor
		}
	}

	stock, err := b.catalog.StockLevel(ctx, product.ID, req.VariantID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read stock")
	}
	if stock < req.Quantity {
		details := map[string]any{
			"product_id": product.ID.String(),
			"requested":  req.Quantity,
			"available":  stock,
		}
		if req.VariantID != nil {
			details["variant_id"] = req.VariantID.String()
		}
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(details)
	}

	return &Line{
		ProductID:      product.ID,
		VariantID:      req.VariantID,
		VendorID:       product.VendorID,
		Quantity:       req.Quantity,
		UnitPriceMinor: price,
		SubtotalMinor:  price * req.Quantity,
	}, nil
}

func lineError(index int, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"line": index})
}

func catalogError(err error, msg string, id uuid.UUID) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg).WithDetails(map[string]any{"id": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read catalog")
}
