package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/atlas/internal/ratelimit"
)

// RateLimit rejects requests once the client IP exhausts its window.
// A failing limiter store lets traffic through rather than blocking it.
func RateLimit(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, err := limiter.Allow(c.Context(), c.IP())
		if err != nil {
			log.Printf("rate limiter unavailable: %v", err)
			return c.Next()
		}
		if !allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		}
		return c.Next()
	}
}
