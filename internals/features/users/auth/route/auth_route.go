package route

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	controller "fieldforce_backend/internals/features/users/auth/controller"
	rateLimiter "fieldforce_backend/internals/middlewares"
	authMiddleware "fieldforce_backend/internals/middlewares/auth"
)

func AuthRoutes(app *fiber.App, db *gorm.DB) {
	authController := controller.NewAuthController(db)

	// Base: /api/auth
	baseAuth := app.Group("/api/auth")

	baseAuth.Post("/login", rateLimiter.LoginRateLimiter(), authController.Login)
	baseAuth.Post("/register", rateLimiter.RegisterRateLimiter(), authController.Register)
	baseAuth.Post("/refresh-token", authController.RefreshToken)
	baseAuth.Post("/logout", authController.Logout)

	// 🔐 needs a valid access token
	protected := baseAuth.Group("", authMiddleware.AuthMiddleware(db))
	protected.Get("/me", authController.Me)
	protected.Post("/change-password", authController.ChangePassword)
}
