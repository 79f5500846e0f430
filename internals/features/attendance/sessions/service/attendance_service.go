package service

import (
	"context"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"fieldforce_backend/internals/configs"
	"fieldforce_backend/internals/features/attendance/metrics"
	"fieldforce_backend/internals/features/attendance/sessions/dto"
	"fieldforce_backend/internals/features/attendance/sessions/model"
	"fieldforce_backend/internals/features/attendance/sessions/repository"
)

// maxClockSkew bounds how far ahead of the server a client timestamp may be.
const maxClockSkew = 5 * time.Minute

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidationError carries per-field messages for a 422 response.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msgs := range e.Fields {
		parts = append(parts, f+": "+strings.Join(msgs, ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {msg}}}
}

// Validate runs the struct tags of a request DTO.
func Validate(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: map[string][]string{}}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = append(out.Fields[fe.Field()], fe.Tag())
	}
	return out
}

// AttendanceService holds the attendance rules shared by the HTTP handlers and the
// in-process gateway.
type AttendanceService struct {
	DB       *gorm.DB
	Location *time.Location
	Now      func() time.Time
}

func NewAttendanceService(db *gorm.DB) *AttendanceService {
	return &AttendanceService{DB: db, Location: configs.WorkdayLocation(), Now: time.Now}
}

func (s *AttendanceService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *AttendanceService) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

/* ====================== SESSIONS ====================== */

func (s *AttendanceService) CheckIn(ctx context.Context, userID uuid.UUID, req dto.CreateAttendanceSessionRequest) (*model.AttendanceSessionModel, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	now := s.now()
	if req.CheckInAt != nil && req.CheckInAt.After(now.Add(maxClockSkew)) {
		return nil, invalid("attendance_session_check_in_at", "in the future")
	}
	m := req.ToModel(userID, now)
	if err := repository.CreateSession(ctx, s.DB, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *AttendanceService) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*model.AttendanceSessionModel, error) {
	return repository.FindUserSession(ctx, s.DB, userID, sessionID)
}

func (s *AttendanceService) OpenSession(ctx context.Context, userID uuid.UUID) (*model.AttendanceSessionModel, error) {
	return repository.FindOpenSession(ctx, s.DB, userID)
}

func (s *AttendanceService) UpdateSession(ctx context.Context, userID, sessionID uuid.UUID, req dto.UpdateAttendanceSessionRequest) (*model.AttendanceSessionModel, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	if req.CheckOutAt != nil && req.CheckOutAt.After(s.now().Add(maxClockSkew)) {
		return nil, invalid("attendance_session_check_out_at", "in the future")
	}
	m, err := repository.UpdateUserSession(ctx, s.DB, userID, sessionID, req.ToUpdates())
	if err != nil {
		return nil, err
	}
	if m.AttendanceSessionCheckOutOdometer != nil && *m.AttendanceSessionCheckOutOdometer < m.AttendanceSessionCheckInOdometer {
		log.Printf("[WARN] odometer decreased on session %s (%.1f -> %.1f), distance clamped",
			sessionID, m.AttendanceSessionCheckInOdometer, *m.AttendanceSessionCheckOutOdometer)
	}
	return m, nil
}

func (s *AttendanceService) DeleteOpenSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	return repository.DeleteOpenUserSession(ctx, s.DB, userID, sessionID)
}

// DayBounds returns the workday-local [start, end) for a calendar date.
func (s *AttendanceService) DayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.loc())
	return start, start.AddDate(0, 0, 1)
}

// Today is the current calendar date in the workday timezone.
func (s *AttendanceService) Today() time.Time {
	start, _ := metrics.DayBounds(s.now(), s.loc())
	return start
}

func (s *AttendanceService) SessionsForDay(ctx context.Context, userID uuid.UUID, date time.Time) ([]model.AttendanceSessionModel, error) {
	start, end := s.DayBounds(date)
	return repository.ListUserSessionsForDay(ctx, s.DB, userID, start, end)
}

/* ====================== SAMPLES ====================== */

func (s *AttendanceService) AddSample(ctx context.Context, userID, sessionID uuid.UUID, req dto.CreateLocationSampleRequest) (*model.LocationSampleModel, bool, error) {
	if err := Validate(&req); err != nil {
		return nil, false, err
	}
	m := req.ToModel(userID, sessionID, s.now())
	return repository.InsertLocationSample(ctx, s.DB, m)
}

func (s *AttendanceService) Samples(ctx context.Context, userID, sessionID uuid.UUID) ([]model.LocationSampleModel, error) {
	if _, err := repository.FindUserSession(ctx, s.DB, userID, sessionID); err != nil {
		return nil, err
	}
	return repository.ListSessionSamples(ctx, s.DB, sessionID)
}

/* ====================== USER FLAGS & SUMMARIES ====================== */

func (s *AttendanceService) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	return repository.SetUserOnDuty(ctx, s.DB, userID, active)
}

func (s *AttendanceService) UpsertSummary(ctx context.Context, userID uuid.UUID, date time.Time, req dto.UpsertDailySummaryRequest) (*model.DailyWorkSummaryModel, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	m := req.ToModel(userID, date)
	if err := repository.UpsertDailySummary(ctx, s.DB, m); err != nil {
		return nil, err
	}
	return repository.FindDailySummary(ctx, s.DB, userID, dto.DateOnly(date))
}

func (s *AttendanceService) Summaries(ctx context.Context, f repository.SummaryFilter, offset, limit int) ([]model.DailyWorkSummaryModel, int64, error) {
	return repository.ListDailySummaries(ctx, s.DB, f, offset, limit)
}

/* ====================== MANAGER / ADMIN ====================== */

// SessionDetail is a session plus what a manager needs to judge it at a glance.
type SessionDetail struct {
	Session      model.AttendanceSessionModel
	SampleCount  int64
	LastPosition *model.LocationSampleModel
}

func (s *AttendanceService) ListSessions(ctx context.Context, f repository.SessionFilter, offset, limit int) ([]model.AttendanceSessionModel, int64, error) {
	return repository.ListSessions(ctx, s.DB, f, offset, limit)
}

func (s *AttendanceService) SessionDetail(ctx context.Context, sessionID uuid.UUID) (*SessionDetail, error) {
	m, err := repository.FindSessionByID(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	n, err := repository.CountSessionSamples(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	until := s.now()
	if m.AttendanceSessionCheckOutAt != nil {
		until = *m.AttendanceSessionCheckOutAt
	}
	last, err := repository.LatestSampleBefore(ctx, s.DB, sessionID, until)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return &SessionDetail{Session: *m, SampleCount: n, LastPosition: last}, nil
}

func (s *AttendanceService) SessionSamples(ctx context.Context, sessionID uuid.UUID) ([]model.LocationSampleModel, error) {
	if _, err := repository.FindSessionByID(ctx, s.DB, sessionID); err != nil {
		return nil, err
	}
	return repository.ListSessionSamples(ctx, s.DB, sessionID)
}

// AdminDeleteSession soft-deletes any session. Deleting an open session also takes
// the user off duty.
func (s *AttendanceService) AdminDeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	m, err := repository.FindSessionByID(ctx, s.DB, sessionID)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.SoftDeleteSession(ctx, tx, sessionID); err != nil {
			return err
		}
		if m.IsOpen() {
			log.Printf("[WARN] admin deleted open session %s of user %s", sessionID, m.AttendanceSessionUserID)
			return repository.SetUserOnDuty(ctx, tx, m.AttendanceSessionUserID, false)
		}
		return nil
	})
}

// DateRange turns inclusive from/to calendar dates into workday-local instants.
func (s *AttendanceService) DateRange(from, to *time.Time) (start, end *time.Time) {
	if from != nil {
		a, _ := s.DayBounds(*from)
		start = &a
	}
	if to != nil {
		_, b := s.DayBounds(*to)
		end = &b
	}
	return start, end
}
