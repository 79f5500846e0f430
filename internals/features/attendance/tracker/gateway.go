package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"fieldforce_backend/internals/features/attendance/metrics"
)

// Gateway errors. Implementations wrap one of these so the tracker can classify failures.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid input")
)

type Session struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	CheckInAt        time.Time
	CheckInOdometer  float64
	CheckInPhotoURL  *string
	CheckOutAt       *time.Time
	CheckOutOdometer *float64
	CheckOutPhotoURL *string
	DurationMinutes  *int
	Distance         *float64
}

func (s Session) IsOpen() bool { return s.CheckOutAt == nil }

func (s Session) Facts() metrics.SessionFacts {
	return metrics.SessionFacts{
		CheckInAt:       s.CheckInAt,
		CheckOutAt:      s.CheckOutAt,
		DurationMinutes: s.DurationMinutes,
		Distance:        s.Distance,
	}
}

type NewSession struct {
	UserID    uuid.UUID
	CheckInAt time.Time
	Odometer  float64
	PhotoURL  *string
}

// SessionUpdate is a partial update; nil fields are left untouched.
type SessionUpdate struct {
	CheckOutAt       *time.Time
	CheckOutOdometer *float64
	CheckOutPhotoURL *string
	DurationMinutes  *int
	Distance         *float64
}

type LocationSample struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	SessionID  uuid.UUID
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	CapturedAt time.Time
}

// Gateway is the persistence side the tracker drives. Implemented over HTTP by
// gatewayclient and directly over the database by the sessions repository.
type Gateway interface {
	CreateSession(ctx context.Context, in NewSession) (uuid.UUID, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	UpdateSession(ctx context.Context, sessionID uuid.UUID, fields SessionUpdate) error
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
	// InsertLocationSample returns the stored row; duplicate is true when an existing
	// near-identical sample was returned instead of inserting.
	InsertLocationSample(ctx context.Context, s LocationSample) (stored *LocationSample, duplicate bool, err error)
	SetUserActive(ctx context.Context, userID uuid.UUID, active bool) error
	ListSessionsForDay(ctx context.Context, userID uuid.UUID, day time.Time) ([]Session, error)
	UpsertDailySummary(ctx context.Context, s metrics.DailySummary) error
	// GetOpenSession returns (nil, nil) when the user has no open session.
	GetOpenSession(ctx context.Context, userID uuid.UUID) (*Session, error)
}
