package controller

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"fieldforce_backend/internals/configs"
	"fieldforce_backend/internals/features/attendance/reports/service"
	"fieldforce_backend/internals/features/attendance/sessions/dto"
	helper "fieldforce_backend/internals/helpers"
)

const maxReportDays = 92

type ReportController struct {
	DB       *gorm.DB
	Location *time.Location
}

func NewReportController(db *gorm.DB) *ReportController {
	return &ReportController{DB: db, Location: configs.WorkdayLocation()}
}

// GET /api/m/attendance/reports/daily-summaries.xlsx?from=YYYY-MM-DD&to=YYYY-MM-DD&user_id=
func (rc *ReportController) ExportDailySummaries(c *fiber.Ctx) error {
	from, err := dto.ParseDate(c.Query("from"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "from is required (YYYY-MM-DD)")
	}
	to := from
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		if to, err = dto.ParseDate(raw); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "Invalid to, expected YYYY-MM-DD")
		}
	}
	if to.Before(from) {
		return helper.JsonError(c, fiber.StatusBadRequest, "to must not be before from")
	}
	if to.Sub(from) > maxReportDays*24*time.Hour {
		return helper.JsonError(c, fiber.StatusBadRequest, fmt.Sprintf("Range too large (max %d days)", maxReportDays))
	}

	f := service.ReportFilter{From: from, To: to}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "Invalid user_id")
		}
		f.UserID = &id
	}

	ctx := c.UserContext()
	summaries, err := service.LoadSummaryRows(ctx, rc.DB, f)
	if err != nil {
		log.Println("[ERROR] report summaries:", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to load summaries")
	}
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	start := time.Date(y1, m1, d1, 0, 0, 0, 0, rc.Location)
	end := time.Date(y2, m2, d2, 0, 0, 0, 0, rc.Location).AddDate(0, 0, 1)
	sessions, err := service.LoadSessionRows(ctx, rc.DB, f.UserID, start, end)
	if err != nil {
		log.Println("[ERROR] report sessions:", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to load sessions")
	}

	buf, err := service.BuildWorkbook(summaries, sessions, rc.Location)
	if err != nil {
		log.Println("[ERROR] build workbook:", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to build report")
	}

	name := fmt.Sprintf("attendance_%s_%s.xlsx", from.Format(dto.DateLayout), to.Format(dto.DateLayout))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(buf.Bytes())
}
