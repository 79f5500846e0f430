package details

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	reportRoute "fieldforce_backend/internals/features/attendance/reports/route"
	sessionRoute "fieldforce_backend/internals/features/attendance/sessions/route"
	helperOSS "fieldforce_backend/internals/helpers/oss"
)

func AttendancePrivateRoutes(r fiber.Router, db *gorm.DB, photos helperOSS.PhotoStore) {
	sessionRoute.AttendanceUserRoutes(r, db, photos)
}

func AttendanceManagerRoutes(r fiber.Router, db *gorm.DB) {
	sessionRoute.AttendanceManagerRoutes(r, db)
	reportRoute.ReportManagerRoutes(r, db)
}

func AttendanceAdminRoutes(r fiber.Router, db *gorm.DB) {
	sessionRoute.AttendanceAdminRoutes(r, db)
}
