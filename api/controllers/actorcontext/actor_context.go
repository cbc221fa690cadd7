package actorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// ResolveActor builds the lifecycle caller from the authenticated context.
func ResolveActor(r *http.Request) (orders.Actor, error) {
	ctx := r.Context()
	userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "user identity missing")
	}

	role := enums.ActorRole(middleware.RoleFromContext(ctx))
	if !role.IsValid() {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}

	actor := orders.Actor{
		UserID: userID,
		Role:   role,
		Email:  middleware.EmailFromContext(ctx),
	}
	if raw := middleware.VendorIDFromContext(ctx); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err != nil {
			return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid vendor id")
		}
		actor.VendorID = &vendorID
	}
	if role == enums.ActorRoleVendor && actor.VendorID == nil {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required")
	}
	return actor, nil
}

// ResolveOperator builds the stock operator for inventory endpoints.
func ResolveOperator(r *http.Request) (inventory.Operator, error) {
	actor, err := ResolveActor(r)
	if err != nil {
		return inventory.Operator{}, err
	}
	if !actor.IsAdmin() && !actor.IsVendor() {
		return inventory.Operator{}, pkgerrors.New(pkgerrors.CodeForbidden, "vendor or admin access required")
	}
	return inventory.Operator{UserID: actor.UserID, VendorID: actor.VendorID, Admin: actor.IsAdmin()}, nil
}
