// Package auth mints and verifies the HS256 bearer tokens that carry a caller's
// actor role and, for vendors, the vendor they act for.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// AccessTokenPayload is the identity being minted into a token.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	Email    string
	VendorID *uuid.UUID
	JTI      string
}

// AccessTokenClaims is the JWT body.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	Role     enums.ActorRole `json:"role"`
	Email    string          `json:"email,omitempty"`
	VendorID *uuid.UUID      `json:"vendor_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate is run by the jwt parser after the registered claims pass.
func (c AccessTokenClaims) Validate() error {
	return checkIdentity(c.UserID, c.Role, c.VendorID)
}

func checkIdentity(userID uuid.UUID, role enums.ActorRole, vendorID *uuid.UUID) error {
	switch {
	case userID == uuid.Nil:
		return errors.New("user id is required")
	case !role.IsValid():
		return fmt.Errorf("invalid actor role %q", role)
	case role == enums.ActorRoleVendor && (vendorID == nil || *vendorID == uuid.Nil):
		return errors.New("vendor tokens require a vendor id")
	}
	return nil
}
