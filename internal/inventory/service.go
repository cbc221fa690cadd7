package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLookup interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
}

// Operator is the caller of a stock operation. Vendors are limited to their
// own products; admins may touch any row.
type Operator struct {
	UserID   uuid.UUID
	VendorID *uuid.UUID
	Admin    bool
}

// AdjustInput is a supply delivery or a manual stock correction.
type AdjustInput struct {
	ProductID uuid.UUID             `json:"product_id" validate:"required"`
	VariantID *uuid.UUID            `json:"variant_id,omitempty"`
	Delta     int64                 `json:"delta" validate:"required"`
	Reason    enums.InventoryReason `json:"reason" validate:"required,oneof=supply manual"`
	Note      string                `json:"note,omitempty" validate:"max=500"`
}

// Snapshot is a stock row with its ledger.
type Snapshot struct {
	InventoryID uuid.UUID                 `json:"inventory_id"`
	ProductID   uuid.UUID                 `json:"product_id"`
	VariantID   *uuid.UUID                `json:"variant_id,omitempty"`
	Stock       int64                     `json:"stock"`
	History     []models.InventoryHistory `json:"history,omitempty"`
}

// Service exposes operator stock adjustments and the audit trail.
type Service struct {
	tx      txRunner
	retrier *Retrier
	ledger  *Ledger
	catalog productLookup
	logg    *logger.Logger
}

func NewService(tx txRunner, retrier *Retrier, ledger *Ledger, products productLookup, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if retrier == nil {
		return nil, fmt.Errorf("retrier required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	return &Service{tx: tx, retrier: retrier, ledger: ledger, catalog: products, logg: logg}, nil
}

// Adjust applies input under the row lock and returns the new stock level.
func (s *Service) Adjust(ctx context.Context, op Operator, input AdjustInput) (*Snapshot, error) {
	key := StockKey{ProductID: input.ProductID, VariantID: input.VariantID}
	if err := s.authorize(ctx, op, key); err != nil {
		return nil, err
	}

	entry := Entry{ActorID: &op.UserID, Note: strings.TrimSpace(input.Note)}
	var mv *Movement
	err := s.retrier.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			mv, err = s.ledger.Adjust(ctx, tx, key, input.Delta, input.Reason, entry)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"product_id": key.String(),
			"reason":     string(input.Reason),
			"adjustment": input.Delta,
			"new_stock":  mv.NewStock,
		})
		s.logg.Info(logCtx, "inventory.adjusted")
	}

	return &Snapshot{
		InventoryID: mv.InventoryID,
		ProductID:   key.ProductID,
		VariantID:   key.VariantID,
		Stock:       mv.NewStock,
	}, nil
}

// History returns the stock row and its ledger in write order.
func (s *Service) History(ctx context.Context, op Operator, key StockKey) (*Snapshot, error) {
	if err := s.authorize(ctx, op, key); err != nil {
		return nil, err
	}
	row, rows, err := s.ledger.History(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		InventoryID: row.ID,
		ProductID:   row.ProductID,
		VariantID:   row.VariantID,
		Stock:       row.Stock,
		History:     rows,
	}, nil
}

func (s *Service) authorize(ctx context.Context, op Operator, key StockKey) error {
	if key.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.catalog.GetProduct(ctx, key.ProductID)
	if err != nil {
		return lookupError(err, "product")
	}
	if key.VariantID != nil {
		variant, err := s.catalog.GetVariant(ctx, *key.VariantID)
		if err != nil {
			return lookupError(err, "variant")
		}
		if variant.ProductID != product.ID {
			return pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
		}
	}
	if op.Admin {
		return nil
	}
	if op.VendorID == nil || *op.VendorID != product.VendorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another vendor")
	}
	return nil
}

func lookupError(err error, what string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load "+what)
}
