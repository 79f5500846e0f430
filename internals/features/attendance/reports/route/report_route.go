package route

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"fieldforce_backend/internals/features/attendance/reports/controller"
)

// ReportManagerRoutes: mounted on /api/m.
func ReportManagerRoutes(r fiber.Router, db *gorm.DB) {
	rc := controller.NewReportController(db)
	r.Get("/attendance/reports/daily-summaries.xlsx", rc.ExportDailySummaries)
}
