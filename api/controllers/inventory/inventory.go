package inventory

import (
	"context"
	"net/http"

	"github.com/angelmondragon/bazaar-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	internalinventory "github.com/angelmondragon/bazaar-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type StockService interface {
	Adjust(ctx context.Context, op internalinventory.Operator, input internalinventory.AdjustInput) (*internalinventory.Snapshot, error)
	History(ctx context.Context, op internalinventory.Operator, key internalinventory.StockKey) (*internalinventory.Snapshot, error)
}

// Adjust records a supply delivery or manual correction.
func Adjust(svc StockService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		op, err := actorcontext.ResolveOperator(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req internalinventory.AdjustInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		snap, err := svc.Adjust(ctx, op, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// History returns the stock ledger of a product or one of its variants
// (?variant_id=).
func History(svc StockService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		op, err := actorcontext.ResolveOperator(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		productID, err := validators.PathUUID(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		variantID, err := validators.QueryUUID(r, "variant_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key := internalinventory.StockKey{ProductID: productID, VariantID: variantID}

		snap, err := svc.History(ctx, op, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}
