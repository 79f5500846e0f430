package routes

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"fieldforce_backend/internals/constants"
	helperOSS "fieldforce_backend/internals/helpers/oss"
	rateLimiter "fieldforce_backend/internals/middlewares"
	authMiddleware "fieldforce_backend/internals/middlewares/auth"
	routeDetails "fieldforce_backend/internals/route/details"
)

var startTime time.Time

func SetupRoutes(app *fiber.App, db *gorm.DB, photos helperOSS.PhotoStore) {
	startTime = time.Now()

	BaseRoutes(app, db)

	// ===================== AUTH =====================
	log.Println("[INFO] Setting up AuthRoutes...")
	routeDetails.AuthRoutes(app, db)

	// ===================== GROUPS =====================
	api := app.Group("/api", rateLimiter.GlobalRateLimiter())

	log.Println("[INFO] Setting up PRIVATE (employee) group...")
	private := api.Group("/u", authMiddleware.AuthMiddleware(db))

	log.Println("[INFO] Setting up MANAGER group (Auth + RoleCheck)...")
	manager := api.Group("/m",
		authMiddleware.AuthMiddleware(db),
		authMiddleware.OnlyRoles(constants.RoleErrorManager("the manager portal"), constants.ManagerAndAbove...),
	)

	log.Println("[INFO] Setting up ADMIN group (Auth + RoleCheck)...")
	admin := api.Group("/a",
		authMiddleware.AuthMiddleware(db),
		authMiddleware.OnlyRoles(constants.RoleErrorAdmin("the admin portal"), constants.AdminOnly...),
	)

	// ===================== MOUNT ROUTES =====================
	log.Println("[INFO] Mounting User routes...")
	routeDetails.UserPrivateRoutes(private, db)
	routeDetails.UserManagerRoutes(manager, db)
	routeDetails.UserAdminRoutes(admin, db)

	log.Println("[INFO] Mounting Attendance routes...")
	routeDetails.AttendancePrivateRoutes(private, db, photos)
	routeDetails.AttendanceManagerRoutes(manager, db)
	routeDetails.AttendanceAdminRoutes(admin, db)
}
