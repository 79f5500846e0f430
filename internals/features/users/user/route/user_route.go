package route

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	userController "fieldforce_backend/internals/features/users/user/controller"
)

// UserRoutes: mounted on /api/u (any authenticated user).
func UserRoutes(r fiber.Router, db *gorm.DB) {
	ctrl := userController.NewUserController(db)

	me := r.Group("/users/me")
	me.Get("/", ctrl.GetMe)
	me.Patch("/", ctrl.UpdateMe)
}

// UserManagerRoutes: mounted on /api/m (manager, admin).
func UserManagerRoutes(r fiber.Router, db *gorm.DB) {
	ctrl := userController.NewUserController(db)
	r.Get("/users", ctrl.GetUsers)
}

// UserAdminRoutes: mounted on /api/a (admin).
func UserAdminRoutes(r fiber.Router, db *gorm.DB) {
	ctrl := userController.NewUserController(db)
	r.Patch("/users/:id", ctrl.AdminUpdateUser)
}
