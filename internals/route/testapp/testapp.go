// Package testapp builds the full HTTP app on an in-memory database for tests.
package testapp

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"fieldforce_backend/internals/configs"
	"fieldforce_backend/internals/databases/testdb"
	helper "fieldforce_backend/internals/helpers"
	helperOSS "fieldforce_backend/internals/helpers/oss"
	routes "fieldforce_backend/internals/route"
)

type App struct {
	*fiber.App
	DB     *gorm.DB
	Photos *helperOSS.DiskStore
}

func New(t testing.TB) *App {
	t.Helper()
	configs.JWTSecret = "test-access-secret"
	configs.JWTRefreshSecret = "test-refresh-secret"
	configs.WorkdayTimezone = "UTC"

	db := testdb.New(t)
	photos := &helperOSS.DiskStore{Dir: t.TempDir(), BaseURL: "/uploads", WebP: helperOSS.DefaultWebPOptions()}

	app := fiber.New(fiber.Config{
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: helper.FiberErrorHandler,
	})
	routes.SetupRoutes(app, db, photos)
	return &App{App: app, DB: db, Photos: photos}
}
