package controller

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"fieldforce_backend/internals/features/attendance/sessions/dto"
	"fieldforce_backend/internals/features/attendance/sessions/repository"
	helper "fieldforce_backend/internals/helpers"
)

func userIDQuery(c *fiber.Ctx) (*uuid.UUID, error) {
	raw := strings.TrimSpace(c.Query("user_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid user_id")
	}
	return &id, nil
}

// GET /api/m/attendance/sessions?user_id=&from=&to=&open=true&page=&per_page=
func (ctl *AttendanceSessionController) ManagerListSessions(c *fiber.Ctx) error {
	userID, err := userIDQuery(c)
	if err != nil {
		return writeError(c, err)
	}
	from, err := parseDateQuery(c, "from")
	if err != nil {
		return writeError(c, err)
	}
	to, err := parseDateQuery(c, "to")
	if err != nil {
		return writeError(c, err)
	}
	start, end := ctl.Svc.DateRange(from, to)

	f := repository.SessionFilter{
		UserID:   userID,
		From:     start,
		To:       end,
		OnlyOpen: c.QueryBool("open", false),
	}
	p := helper.ResolvePaging(c, 20, 200)
	list, total, err := ctl.Svc.ListSessions(c.UserContext(), f, p.Offset, p.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromSessionModels(list),
		helper.BuildPaginationFromOffset(total, p.Offset, p.Limit))
}

// GET /api/m/attendance/sessions/:id
func (ctl *AttendanceSessionController) ManagerGetSession(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	d, err := ctl.Svc.SessionDetail(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}

	out := fiber.Map{
		"session":      dto.FromSessionModel(d.Session),
		"sample_count": d.SampleCount,
	}
	if d.LastPosition != nil {
		out["last_position"] = dto.FromSampleModel(*d.LastPosition)
	}
	return helper.JsonOK(c, "ok", out)
}

// GET /api/m/attendance/sessions/:id/samples
func (ctl *AttendanceSessionController) ManagerListSamples(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	list, err := ctl.Svc.SessionSamples(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromSampleModels(list), nil)
}

// GET /api/m/attendance/summaries?user_id=&from=&to=
func (ctl *AttendanceSessionController) ManagerListSummaries(c *fiber.Ctx) error {
	userID, err := userIDQuery(c)
	if err != nil {
		return writeError(c, err)
	}
	return ctl.listSummaries(c, repository.SummaryFilter{UserID: userID})
}

// DELETE /api/a/attendance/sessions/:id (soft delete)
func (ctl *AttendanceSessionController) AdminDeleteSession(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := ctl.Svc.AdminDeleteSession(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	log.Printf("[INFO] admin %v deleted session %s", c.Locals("user_id"), id)
	return helper.JsonDeleted(c, "Session deleted", fiber.Map{"attendance_session_id": id})
}
