package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// StockKey addresses one inventory row: the variant row when VariantID is set,
// otherwise the product-level row.
type StockKey struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
}

func (k StockKey) String() string {
	if k.VariantID == nil {
		return k.ProductID.String()
	}
	return k.ProductID.String() + "/" + k.VariantID.String()
}

// Entry carries the audit fields written to every history row.
type Entry struct {
	ReferenceID *uuid.UUID
	ActorID     *uuid.UUID
	Note        string
}

// Movement is the result of one ledger write.
type Movement struct {
	InventoryID   uuid.UUID
	PreviousStock int64
	NewStock      int64
	HistoryID     uuid.UUID
}

// Ledger is the single writer of inventory stock. Every mutation locks the row,
// applies a guarded update and appends a history entry in the caller's
// transaction.
type Ledger struct {
	db          *gorm.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// NewLedger builds a ledger. The connection is only used for reads outside a
// transaction.
func NewLedger(conn *gorm.DB, lockTimeout time.Duration) (*Ledger, error) {
	if conn == nil {
		return nil, fmt.Errorf("db connection required")
	}
	return &Ledger{db: conn, lockTimeout: lockTimeout, now: time.Now}, nil
}

// Reserve removes qty units for an order and bumps the product's units sold.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, key StockKey, qty int64, entry Entry) (*Movement, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	mv, err := l.move(ctx, tx, key, -qty, enums.InventoryReasonOrderPlacement, entry, false)
	if err != nil {
		return nil, err
	}
	if err := newRepository(tx).addUnitsSold(ctx, key.ProductID, qty); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update units sold")
	}
	return mv, nil
}

// Release returns qty units, typically on cancellation, and lowers units sold
// without letting it go negative.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, key StockKey, qty int64, reason enums.InventoryReason, entry Entry) (*Movement, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid inventory reason")
	}
	mv, err := l.move(ctx, tx, key, qty, reason, entry, false)
	if err != nil {
		return nil, err
	}
	if err := newRepository(tx).addUnitsSold(ctx, key.ProductID, -qty); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update units sold")
	}
	return mv, nil
}

// Adjust applies a supply or manual correction. Supply may create the row on
// first delivery; units sold is untouched.
func (l *Ledger) Adjust(ctx context.Context, tx *gorm.DB, key StockKey, delta int64, reason enums.InventoryReason, entry Entry) (*Movement, error) {
	if delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment must be non-zero")
	}
	if reason != enums.InventoryReasonSupply && reason != enums.InventoryReasonManual {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjust accepts supply or manual reasons")
	}
	if reason == enums.InventoryReasonSupply && delta < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supply must add stock")
	}
	mv, err := l.move(ctx, tx, key, delta, reason, entry, reason == enums.InventoryReasonSupply)
	if err != nil {
		return nil, err
	}
	if reason == enums.InventoryReasonSupply {
		if err := newRepository(tx).setLastSupply(ctx, mv.InventoryID, mv.HistoryID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record last supply")
		}
	}
	return mv, nil
}

// History lists the ledger rows of one inventory row in write order.
func (l *Ledger) History(ctx context.Context, key StockKey) (*models.Inventory, []models.InventoryHistory, error) {
	repo := newRepository(l.db)
	row, err := repo.find(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory")
	}
	rows, err := repo.history(ctx, row.ID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory history")
	}
	return row, rows, nil
}

func (l *Ledger) move(ctx context.Context, tx *gorm.DB, key StockKey, delta int64, reason enums.InventoryReason, entry Entry, createMissing bool) (*Movement, error) {
	if tx == nil {
		return nil, fmt.Errorf("inventory writes require a transaction")
	}
	if key.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if err := db.SetLockTimeout(tx, l.lockTimeout); err != nil {
		return nil, err
	}

	repo := newRepository(tx)
	row, err := repo.lock(ctx, key)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound) && createMissing:
		row = &models.Inventory{ID: uuid.New(), ProductID: key.ProductID, VariantID: key.VariantID}
		if err := repo.create(ctx, row); err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found").
			WithDetails(map[string]any{"stock_key": key.String()})
	case err != nil:
		return nil, err
	}

	if row.Stock+delta < 0 {
		return nil, insufficient(key, -delta, row.Stock)
	}

	now := l.now().UTC()
	ok, err := repo.shift(ctx, row.ID, delta, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, insufficient(key, -delta, row.Stock)
	}

	seq, err := repo.nextSeq(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	history := &models.InventoryHistory{
		ID:            uuid.New(),
		InventoryID:   row.ID,
		ProductID:     key.ProductID,
		VariantID:     key.VariantID,
		PreviousStock: row.Stock,
		NewStock:      row.Stock + delta,
		Adjustment:    delta,
		Reason:        reason,
		ReferenceID:   entry.ReferenceID,
		ActorID:       entry.ActorID,
		Seq:           seq,
		CreatedAt:     now,
	}
	if note := strings.TrimSpace(entry.Note); note != "" {
		history.Note = &note
	}
	if err := repo.appendHistory(ctx, history); err != nil {
		return nil, err
	}

	return &Movement{
		InventoryID:   row.ID,
		PreviousStock: history.PreviousStock,
		NewStock:      history.NewStock,
		HistoryID:     history.ID,
	}, nil
}

func insufficient(key StockKey, requested, available int64) error {
	details := map[string]any{
		"product_id": key.ProductID.String(),
		"requested":  requested,
		"available":  available,
	}
	if key.VariantID != nil {
		details["variant_id"] = key.VariantID.String()
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(details)
}
