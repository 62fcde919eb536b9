package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/atlas/internal/config"
	"github.com/example/atlas/internal/handlers"
	"github.com/example/atlas/internal/middleware"
	"github.com/example/atlas/internal/ratelimit"
	"github.com/example/atlas/internal/repository"
	"github.com/example/atlas/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, limiter ratelimit.Limiter) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)

	discountService := services.NewDiscountService(repository.NewPromoRepository(db))
	checkoutService := services.NewCheckoutService(repository.NewCheckoutRepository(db), discountService, telegramService)

	authHandler := handlers.NewAuthHandler(db, cfg)
	catalogHandler := handlers.NewCatalogHandler(db)
	productHandler := handlers.NewProductHandler(db)
	promoHandler := handlers.NewPromoHandler(db, discountService)
	orderHandler := handlers.NewOrderHandler(db, checkoutService)
	profileHandler := handlers.NewProfileHandler(db)
	adminHandler := handlers.NewAdminHandler(db)

	limited := middleware.RateLimit(limiter)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", limited, authHandler.Register)
	auth.Post("/login", limited, authHandler.Login)

	// Storefront catalog
	api.Get("/categories", catalogHandler.ListCategories)
	api.Get("/categories/:id", catalogHandler.GetCategory)
	api.Get("/products", productHandler.ListProducts)
	api.Get("/products/:id", productHandler.GetProduct)

	// Discount preview; anonymous allowed, promo rules decide.
	api.Post("/promo-codes/evaluate", limited, middleware.OptionalAuth(cfg), promoHandler.Evaluate)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Post("/orders", limited, orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Get("/profile/addresses", profileHandler.ListAddresses)
	protected.Post("/profile/addresses", profileHandler.CreateAddress)
	protected.Put("/profile/addresses/:id", profileHandler.UpdateAddress)
	protected.Delete("/profile/addresses/:id", profileHandler.DeleteAddress)

	// Admin routes
	admin := api.Group("/admin", middleware.AuthMiddleware(cfg), middleware.RequireAdmin(db))

	admin.Get("/stats", adminHandler.DashboardStats)

	admin.Get("/promo-codes", promoHandler.ListPromoCodes)
	admin.Post("/promo-codes", promoHandler.CreatePromoCode)
	admin.Get("/promo-codes/:id", promoHandler.GetPromoCode)
	admin.Put("/promo-codes/:id", promoHandler.UpdatePromoCode)
	admin.Delete("/promo-codes/:id", promoHandler.DeletePromoCode)

	admin.Post("/products", productHandler.CreateProduct)
	admin.Put("/products/:id", productHandler.UpdateProduct)
	admin.Delete("/products/:id", productHandler.DeleteProduct)

	admin.Post("/categories", catalogHandler.CreateCategory)
	admin.Put("/categories/:id", catalogHandler.UpdateCategory)
	admin.Delete("/categories/:id", catalogHandler.DeleteCategory)

	admin.Get("/orders", orderHandler.ListAllOrders)
	admin.Put("/orders/:id/status", orderHandler.UpdateOrderStatus)
}
