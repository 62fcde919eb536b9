package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/example/atlas/internal/config"
	"github.com/example/atlas/internal/database"
	"github.com/example/atlas/internal/ratelimit"
	"github.com/example/atlas/internal/routes"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	limiterCfg := ratelimit.Config{Limit: cfg.RateLimitPerMin, Window: time.Minute}
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		limiter = ratelimit.NewRedisLimiter(redis.NewClient(opts), limiterCfg)
	} else {
		log.Println("REDIS_URL not set, rate limits are per-instance")
		limiter = ratelimit.NewMemoryLimiter(limiterCfg)
	}

	app := fiber.New(fiber.Config{
		AppName: "Atlas Backend",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, db, cfg, limiter)

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
