package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// LocalsKey is where guards store the verified claims in fiber locals
const LocalsKey = "user"

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the IdentityClaims in the given context
func WithClaimsContext(r context.Context, claims *IdentityClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the IdentityClaims from the standard context
func GetClaims(ctx context.Context) (*IdentityClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*IdentityClaims)
	return raw, ok && raw != nil
}

// ClaimsFromFiber returns the claims a guard attached to the request
func ClaimsFromFiber(c *fiber.Ctx) (*IdentityClaims, bool) {
	raw, ok := c.Locals(LocalsKey).(*IdentityClaims)
	if ok && raw != nil {
		return raw, true
	}
	return GetClaims(c.UserContext())
}
