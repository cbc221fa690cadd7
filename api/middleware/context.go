package middleware

import "context"

// identity is the authenticated caller as read from the bearer token.
type identity struct {
	userID   string
	role     string
	vendorID string
	email    string
}

type identityKey struct{}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

func UserIDFromContext(ctx context.Context) string { return identityFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return identityFrom(ctx).role }

// VendorIDFromContext returns the vendor the caller acts for, if any.
func VendorIDFromContext(ctx context.Context) string { return identityFrom(ctx).vendorID }

func EmailFromContext(ctx context.Context) string { return identityFrom(ctx).email }

// WithIdentity stores the caller on ctx. Auth calls it after verifying the
// token; tests call it directly.
func WithIdentity(ctx context.Context, userID, role, vendorID, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, identity{
		userID:   userID,
		role:     role,
		vendorID: vendorID,
		email:    email,
	})
}
