package route

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"fieldforce_backend/internals/features/attendance/sessions/controller"
	helperOSS "fieldforce_backend/internals/helpers/oss"
)

// AttendanceUserRoutes: mounted on /api/u; every route acts on the caller's own data.
func AttendanceUserRoutes(r fiber.Router, db *gorm.DB, photos helperOSS.PhotoStore) {
	ctl := controller.NewAttendanceSessionController(db)
	photoCtl := controller.NewAttendancePhotoController(photos)

	g := r.Group("/attendance")

	sessions := g.Group("/sessions")
	sessions.Post("/", ctl.CheckIn)
	sessions.Get("/", ctl.ListMySessions)
	sessions.Get("/open", ctl.GetOpenSession)
	sessions.Get("/:id", ctl.GetSession)
	sessions.Patch("/:id", ctl.UpdateSession)
	sessions.Delete("/:id", ctl.DeleteSession)
	sessions.Post("/:id/samples", ctl.AddSample)
	sessions.Get("/:id/samples", ctl.ListSamples)

	g.Put("/me/active", ctl.SetActive)

	g.Put("/summaries/:date", ctl.UpsertSummary)
	g.Get("/summaries", ctl.ListMySummaries)

	g.Post("/photos", photoCtl.Upload)
}

// AttendanceManagerRoutes: mounted on /api/m.
func AttendanceManagerRoutes(r fiber.Router, db *gorm.DB) {
	ctl := controller.NewAttendanceSessionController(db)

	g := r.Group("/attendance")
	g.Get("/sessions", ctl.ManagerListSessions)
	g.Get("/sessions/:id", ctl.ManagerGetSession)
	g.Get("/sessions/:id/samples", ctl.ManagerListSamples)
	g.Get("/summaries", ctl.ManagerListSummaries)
}

// AttendanceAdminRoutes: mounted on /api/a.
func AttendanceAdminRoutes(r fiber.Router, db *gorm.DB) {
	ctl := controller.NewAttendanceSessionController(db)
	r.Delete("/attendance/sessions/:id", ctl.AdminDeleteSession)
}
