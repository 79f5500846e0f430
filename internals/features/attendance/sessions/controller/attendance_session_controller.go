package controller

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"fieldforce_backend/internals/features/attendance/sessions/dto"
	"fieldforce_backend/internals/features/attendance/sessions/repository"
	"fieldforce_backend/internals/features/attendance/sessions/service"
	helper "fieldforce_backend/internals/helpers"
)

type AttendanceSessionController struct {
	DB  *gorm.DB
	Svc *service.AttendanceService
}

func NewAttendanceSessionController(db *gorm.DB) *AttendanceSessionController {
	return &AttendanceSessionController{DB: db, Svc: service.NewAttendanceService(db)}
}

/* ====================== helpers ====================== */

// writeError maps service and repository errors onto the JSON envelope.
func writeError(c *fiber.Ctx, err error) error {
	var verr *service.ValidationError
	var ferr *fiber.Error
	switch {
	case errors.As(err, &verr):
		return helper.JsonValidationError(c, verr.Fields)
	case errors.As(err, &ferr):
		return helper.JsonError(c, ferr.Code, ferr.Message)
	case errors.Is(err, repository.ErrNotFound):
		return helper.JsonError(c, fiber.StatusNotFound, "Attendance session not found")
	case errors.Is(err, repository.ErrOpenSessionExists):
		return helper.JsonError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrSessionClosed):
		return helper.JsonError(c, fiber.StatusConflict, err.Error())
	default:
		log.Printf("[ERROR] %s %s: %v", c.Method(), c.Path(), err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Internal server error")
	}
}

func sessionIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}
	return id, nil
}

// parseDateQuery reads an optional YYYY-MM-DD query value.
func parseDateQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	d, err := dto.ParseDate(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+key+", expected YYYY-MM-DD")
	}
	return &d, nil
}

/* ====================== SESSIONS ====================== */

// POST /api/u/attendance/sessions
func (ctl *AttendanceSessionController) CheckIn(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	var req dto.CreateAttendanceSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	m, err := ctl.Svc.CheckIn(c.UserContext(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	log.Printf("[INFO] ✅ check-in %s user=%s", m.AttendanceSessionID, userID)
	return helper.JsonCreated(c, "Checked in", dto.FromSessionModel(*m))
}

// GET /api/u/attendance/sessions?date=YYYY-MM-DD (default today)
func (ctl *AttendanceSessionController) ListMySessions(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	date, err := parseDateQuery(c, "date")
	if err != nil {
		return writeError(c, err)
	}
	day := ctl.Svc.Today()
	if date != nil {
		day = *date
	}

	list, err := ctl.Svc.SessionsForDay(c.UserContext(), userID, day)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromSessionModels(list), nil)
}

// GET /api/u/attendance/sessions/open → data null when checked out
func (ctl *AttendanceSessionController) GetOpenSession(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	m, err := ctl.Svc.OpenSession(c.UserContext(), userID)
	if err != nil {
		return writeError(c, err)
	}
	if m == nil {
		return helper.JsonOK(c, "No open session", nil)
	}
	return helper.JsonOK(c, "ok", dto.FromSessionModel(*m))
}

// GET /api/u/attendance/sessions/:id
func (ctl *AttendanceSessionController) GetSession(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	id, err := sessionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	m, err := ctl.Svc.GetSession(c.UserContext(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.FromSessionModel(*m))
}

// PATCH /api/u/attendance/sessions/:id
func (ctl *AttendanceSessionController) UpdateSession(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	id, err := sessionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	var req dto.UpdateAttendanceSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.IsEmpty() {
		return helper.JsonError(c, fiber.StatusBadRequest, "Nothing to update")
	}

	m, err := ctl.Svc.UpdateSession(c.UserContext(), userID, id, req)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonUpdated(c, "Session updated", dto.FromSessionModel(*m))
}

// DELETE /api/u/attendance/sessions/:id (own open session only)
func (ctl *AttendanceSessionController) DeleteSession(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	id, err := sessionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := ctl.Svc.DeleteOpenSession(c.UserContext(), userID, id); err != nil {
		return writeError(c, err)
	}
	log.Printf("[WARN] check-in %s of user %s rolled back", id, userID)
	return helper.JsonDeleted(c, "Session deleted", fiber.Map{"attendance_session_id": id})
}

/* ====================== SAMPLES ====================== */

// POST /api/u/attendance/sessions/:id/samples → 201 new, 200 duplicate
func (ctl *AttendanceSessionController) AddSample(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	id, err := sessionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	var req dto.CreateLocationSampleRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	m, dup, err := ctl.Svc.AddSample(c.UserContext(), userID, id, req)
	if err != nil {
		return writeError(c, err)
	}
	resp := dto.FromSampleModel(*m)
	if dup {
		resp.LocationSampleDuplicate = true
		return helper.JsonOK(c, "Duplicate sample ignored", resp)
	}
	return helper.JsonCreated(c, "Sample recorded", resp)
}

// GET /api/u/attendance/sessions/:id/samples
func (ctl *AttendanceSessionController) ListSamples(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	id, err := sessionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	list, err := ctl.Svc.Samples(c.UserContext(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromSampleModels(list), nil)
}

/* ====================== USER FLAG ====================== */

// PUT /api/u/attendance/me/active
func (ctl *AttendanceSessionController) SetActive(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}
	var req dto.SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := service.Validate(&req); err != nil {
		return writeError(c, err)
	}
	if err := ctl.Svc.SetActive(c.UserContext(), userID, *req.Active); err != nil {
		return writeError(c, err)
	}
	return helper.JsonUpdated(c, "Active flag updated", fiber.Map{"active": *req.Active})
}
