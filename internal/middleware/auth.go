package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/atlas/internal/config"
	"github.com/example/atlas/internal/models"
	"github.com/example/atlas/internal/utils"
)

const userContextKey = "currentUserID"

// AuthMiddleware validates JWT tokens and loads the authenticated user ID into context.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := bearerUserID(c, cfg)
		if err != nil {
			return err
		}

		c.Locals(userContextKey, userID)
		return c.Next()
	}
}

// OptionalAuth loads the user ID when a valid bearer token is present and
// lets anonymous requests through. Used on the discount preview endpoint.
func OptionalAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return c.Next()
		}

		userID, err := bearerUserID(c, cfg)
		if err != nil {
			return c.Next()
		}

		c.Locals(userContextKey, userID)
		return c.Next()
	}
}

// RequireAdmin gates a route to accounts flagged as administrators. Must
// run after AuthMiddleware.
func RequireAdmin(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := GetCurrentUserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}

		var user models.User
		if err := db.First(&user, "id = ?", userID).Error; err != nil {
			return fiber.NewError(fiber.StatusForbidden, "admin access required")
		}
		if !user.IsAdmin {
			return fiber.NewError(fiber.StatusForbidden, "admin access required")
		}

		return c.Next()
	}
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}

func bearerUserID(c *fiber.Ctx, cfg *config.Config) (uuid.UUID, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
	}

	userID, err := utils.ParseToken(cfg.JWTSecret, parts[1])
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	return userID, nil
}
