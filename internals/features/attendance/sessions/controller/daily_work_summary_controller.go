package controller

import (
	"github.com/gofiber/fiber/v2"

	"fieldforce_backend/internals/features/attendance/sessions/dto"
	"fieldforce_backend/internals/features/attendance/sessions/repository"
	helper "fieldforce_backend/internals/helpers"
)

// PUT /api/u/attendance/summaries/:date (idempotent overwrite)
func (ctl *AttendanceSessionController) UpsertSummary(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	date, err := dto.ParseDate(c.Params("date"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
	}
	var req dto.UpsertDailySummaryRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	m, err := ctl.Svc.UpsertSummary(c.UserContext(), userID, date, req)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonUpdated(c, "Daily summary saved", dto.FromSummaryModel(*m))
}

// GET /api/u/attendance/summaries?from=&to=&page=&per_page=
func (ctl *AttendanceSessionController) ListMySummaries(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	f := repository.SummaryFilter{UserID: &userID}
	return ctl.listSummaries(c, f)
}

func (ctl *AttendanceSessionController) listSummaries(c *fiber.Ctx, f repository.SummaryFilter) error {
	var err error
	if f.From, err = parseDateQuery(c, "from"); err != nil {
		return writeError(c, err)
	}
	if f.To, err = parseDateQuery(c, "to"); err != nil {
		return writeError(c, err)
	}

	p := helper.ResolvePaging(c, 31, 366)
	list, total, err := ctl.Svc.Summaries(c.UserContext(), f, p.Offset, p.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromSummaryModels(list),
		helper.BuildPaginationFromOffset(total, p.Offset, p.Limit))
}
