package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"fieldforce_backend/internals/features/attendance/metrics"
	"fieldforce_backend/internals/features/attendance/sessions/dto"
	"fieldforce_backend/internals/features/attendance/sessions/repository"
	"fieldforce_backend/internals/features/attendance/tracker"
)

// DirectGateway drives the tracker straight against the database, scoped to one user.
type DirectGateway struct {
	Svc    *AttendanceService
	UserID uuid.UUID
}

var _ tracker.Gateway = (*DirectGateway)(nil)

func NewDirectGateway(svc *AttendanceService, userID uuid.UUID) *DirectGateway {
	return &DirectGateway{Svc: svc, UserID: userID}
}

// ToTrackerError maps repository and validation errors onto the tracker's sentinels.
func ToTrackerError(err error) error {
	var verr *ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr):
		return errors.Wrap(tracker.ErrInvalid, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return errors.Wrap(tracker.ErrNotFound, err.Error())
	case errors.Is(err, repository.ErrOpenSessionExists), errors.Is(err, repository.ErrSessionClosed):
		return errors.Wrap(tracker.ErrConflict, err.Error())
	default:
		return err
	}
}

func (g *DirectGateway) owner(userID uuid.UUID) error {
	if userID != g.UserID {
		return errors.Wrap(tracker.ErrNotFound, "user mismatch")
	}
	return nil
}

func (g *DirectGateway) CreateSession(ctx context.Context, in tracker.NewSession) (uuid.UUID, error) {
	if err := g.owner(in.UserID); err != nil {
		return uuid.Nil, err
	}
	odo, at := in.Odometer, in.CheckInAt
	m, err := g.Svc.CheckIn(ctx, g.UserID, dto.CreateAttendanceSessionRequest{
		CheckInAt:       &at,
		CheckInOdometer: &odo,
		CheckInPhotoURL: in.PhotoURL,
	})
	if err != nil {
		return uuid.Nil, ToTrackerError(err)
	}
	return m.AttendanceSessionID, nil
}

func (g *DirectGateway) GetSession(ctx context.Context, sessionID uuid.UUID) (*tracker.Session, error) {
	m, err := g.Svc.GetSession(ctx, g.UserID, sessionID)
	if err != nil {
		return nil, ToTrackerError(err)
	}
	s := dto.SessionModelToTracker(*m)
	return &s, nil
}

func (g *DirectGateway) UpdateSession(ctx context.Context, sessionID uuid.UUID, fields tracker.SessionUpdate) error {
	_, err := g.Svc.UpdateSession(ctx, g.UserID, sessionID, dto.UpdateRequestFromTracker(fields))
	return ToTrackerError(err)
}

func (g *DirectGateway) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	return ToTrackerError(g.Svc.DeleteOpenSession(ctx, g.UserID, sessionID))
}

func (g *DirectGateway) InsertLocationSample(ctx context.Context, s tracker.LocationSample) (*tracker.LocationSample, bool, error) {
	if err := g.owner(s.UserID); err != nil {
		return nil, false, err
	}
	m, dup, err := g.Svc.AddSample(ctx, g.UserID, s.SessionID, dto.SampleRequestFromTracker(s))
	if err != nil {
		return nil, false, ToTrackerError(err)
	}
	out := dto.FromSampleModel(*m).ToTracker()
	return &out, dup, nil
}

func (g *DirectGateway) SetUserActive(ctx context.Context, userID uuid.UUID, active bool) error {
	if err := g.owner(userID); err != nil {
		return err
	}
	return ToTrackerError(g.Svc.SetActive(ctx, userID, active))
}

func (g *DirectGateway) ListSessionsForDay(ctx context.Context, userID uuid.UUID, day time.Time) ([]tracker.Session, error) {
	if err := g.owner(userID); err != nil {
		return nil, err
	}
	list, err := g.Svc.SessionsForDay(ctx, userID, day)
	if err != nil {
		return nil, ToTrackerError(err)
	}
	out := make([]tracker.Session, 0, len(list))
	for _, m := range list {
		out = append(out, dto.SessionModelToTracker(m))
	}
	return out, nil
}

func (g *DirectGateway) UpsertDailySummary(ctx context.Context, s metrics.DailySummary) error {
	if err := g.owner(s.UserID); err != nil {
		return err
	}
	_, err := g.Svc.UpsertSummary(ctx, s.UserID, s.Date, dto.SummaryRequestFromMetrics(s))
	return ToTrackerError(err)
}

func (g *DirectGateway) GetOpenSession(ctx context.Context, userID uuid.UUID) (*tracker.Session, error) {
	if err := g.owner(userID); err != nil {
		return nil, err
	}
	m, err := g.Svc.OpenSession(ctx, userID)
	if err != nil || m == nil {
		return nil, ToTrackerError(err)
	}
	s := dto.SessionModelToTracker(*m)
	return &s, nil
}
