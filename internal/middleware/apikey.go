package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// APIKeyMiddleware validates the shared API key for programmatic access.
// This middleware checks the X-API-Key header; an empty configured key
// disables the check entirely.
func APIKeyMiddleware(configuredKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if configuredKey == "" {
			return c.Next()
		}

		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key. Include X-API-Key header.",
			})
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(configuredKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		c.Locals("auth_type", "api_key")
		return c.Next()
	}
}
