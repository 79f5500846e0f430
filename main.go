package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/utils"

	"fieldforce_backend/internals/configs"
	database "fieldforce_backend/internals/databases"
	scheduler "fieldforce_backend/internals/features/users/auth/scheduler"
	helper "fieldforce_backend/internals/helpers"
	helperOSS "fieldforce_backend/internals/helpers/oss"
	middlewares "fieldforce_backend/internals/middlewares"
	routes "fieldforce_backend/internals/route"
	"fieldforce_backend/internals/seeds"
)

func main() {
	configs.LoadEnv()

	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		ErrorHandler:            helper.FiberErrorHandler,
		BodyLimit:               10 * 1024 * 1024,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
	})

	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())

	// 🔎 Request-ID + timeout guard
	app.Use(func(c *fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = utils.UUID()
		}
		c.Set(fiber.HeaderXRequestID, id)
		c.Locals("request_id", id)
		ctx, cancel := context.WithTimeout(c.Context(), configs.GetEnvDuration("HTTP_REQUEST_TIMEOUT", 15*time.Second))
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})

	middlewares.SetupMiddlewares(app)

	// 🔌 DB connect + pool + migrate + warm-up
	database.ConnectDB()
	database.TunePool()
	if configs.GetEnvBool("DB_AUTO_MIGRATE", true) {
		if err := database.Migrate(database.DB); err != nil {
			log.Fatalf("❌ migrate: %v", err)
		}
		log.Println("✅ Schema migrated.")
	}
	if f := configs.GetEnv("SEED_USERS_FILE"); f != "" {
		if err := seeds.RunAllSeeds(database.DB, f); err != nil {
			log.Fatalf("❌ seed: %v", err)
		}
	}
	database.WarmUpQueries()

	// ⏱ scheduler after DB is ready
	cleanup, err := scheduler.StartTokenCleanupScheduler(database.DB)
	if err != nil {
		log.Fatalf("❌ token cleanup scheduler: %v", err)
	}

	photos := helperOSS.NewPhotoStoreFromEnv()
	if disk, ok := photos.(*helperOSS.DiskStore); ok {
		app.Static(disk.BaseURL, disk.Dir, fiber.Static{MaxAge: 3600})
	}

	routes.SetupRoutes(app, database.DB, photos)

	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	port := configs.GetEnv("PORT", "3000")

	go func() {
		log.Printf("✅ Listening on :%s", port)
		if err := app.Listen("0.0.0.0:" + port); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown + close DB pool
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")

	<-cleanup.Stop().Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)

	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
