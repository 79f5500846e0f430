package details

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	userRoute "fieldforce_backend/internals/features/users/user/route"
)

func UserPrivateRoutes(r fiber.Router, db *gorm.DB) {
	userRoute.UserRoutes(r, db)
}

func UserManagerRoutes(r fiber.Router, db *gorm.DB) {
	userRoute.UserManagerRoutes(r, db)
}

func UserAdminRoutes(r fiber.Router, db *gorm.DB) {
	userRoute.UserAdminRoutes(r, db)
}
