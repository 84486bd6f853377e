package auth

import (
	"github.com/gofiber/fiber/v2"
)

// JWKSHandler serves the public key set so other services can verify
// session tokens without the private key.
func JWKSHandler(keys *KeyMaterial) fiber.Handler {
	set := keys.JWKS()
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
		return c.JSON(set)
	}
}
