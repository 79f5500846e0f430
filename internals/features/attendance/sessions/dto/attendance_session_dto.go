package dto

import (
	"time"

	"github.com/google/uuid"

	"fieldforce_backend/internals/features/attendance/sessions/model"
	"fieldforce_backend/internals/features/attendance/tracker"
)

/* =======================================================
   REQUEST DTOs
   ======================================================= */

// CreateAttendanceSessionRequest: check-in. CheckInAt defaults to server time.
type CreateAttendanceSessionRequest struct {
	CheckInAt       *time.Time `json:"attendance_session_check_in_at,omitempty"`
	CheckInOdometer *float64   `json:"attendance_session_check_in_odometer" validate:"required,gte=0"`
	CheckInPhotoURL *string    `json:"attendance_session_check_in_photo_url,omitempty" validate:"omitempty,url"`
}

func (r *CreateAttendanceSessionRequest) ToModel(userID uuid.UUID, now time.Time) *model.AttendanceSessionModel {
	at := now
	if r.CheckInAt != nil {
		at = *r.CheckInAt
	}
	return &model.AttendanceSessionModel{
		AttendanceSessionUserID:          userID,
		AttendanceSessionCheckInAt:       at.UTC(),
		AttendanceSessionCheckInOdometer: *r.CheckInOdometer,
		AttendanceSessionCheckInPhotoURL: r.CheckInPhotoURL,
	}
}

// UpdateAttendanceSessionRequest: partial update (pointer = omit vs set)
type UpdateAttendanceSessionRequest struct {
	CheckOutAt       *time.Time `json:"attendance_session_check_out_at,omitempty"`
	CheckOutOdometer *float64   `json:"attendance_session_check_out_odometer,omitempty" validate:"omitempty,gte=0"`
	CheckOutPhotoURL *string    `json:"attendance_session_check_out_photo_url,omitempty" validate:"omitempty,url"`
	DurationMinutes  *int       `json:"attendance_session_duration_minutes,omitempty" validate:"omitempty,gte=1"`
	Distance         *float64   `json:"attendance_session_distance,omitempty" validate:"omitempty,gte=0"`
}

func (r *UpdateAttendanceSessionRequest) IsEmpty() bool {
	return r.CheckOutAt == nil && r.CheckOutOdometer == nil && r.CheckOutPhotoURL == nil &&
		r.DurationMinutes == nil && r.Distance == nil
}

// ToUpdates returns column → value for the fields that were sent.
func (r *UpdateAttendanceSessionRequest) ToUpdates() map[string]interface{} {
	u := map[string]interface{}{}
	if r.CheckOutAt != nil {
		u["attendance_session_check_out_at"] = r.CheckOutAt.UTC()
	}
	if r.CheckOutOdometer != nil {
		u["attendance_session_check_out_odometer"] = *r.CheckOutOdometer
	}
	if r.CheckOutPhotoURL != nil {
		u["attendance_session_check_out_photo_url"] = *r.CheckOutPhotoURL
	}
	if r.DurationMinutes != nil {
		u["attendance_session_duration_minutes"] = *r.DurationMinutes
	}
	if r.Distance != nil {
		u["attendance_session_distance"] = *r.Distance
	}
	return u
}

func UpdateRequestFromTracker(f tracker.SessionUpdate) UpdateAttendanceSessionRequest {
	return UpdateAttendanceSessionRequest{
		CheckOutAt:       f.CheckOutAt,
		CheckOutOdometer: f.CheckOutOdometer,
		CheckOutPhotoURL: f.CheckOutPhotoURL,
		DurationMinutes:  f.DurationMinutes,
		Distance:         f.Distance,
	}
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

/* =======================================================
   RESPONSE DTOs
   ======================================================= */

type AttendanceSessionResponse struct {
	AttendanceSessionID               uuid.UUID  `json:"attendance_session_id"`
	AttendanceSessionUserID           uuid.UUID  `json:"attendance_session_user_id"`
	AttendanceSessionCheckInAt        time.Time  `json:"attendance_session_check_in_at"`
	AttendanceSessionCheckInOdometer  float64    `json:"attendance_session_check_in_odometer"`
	AttendanceSessionCheckInPhotoURL  *string    `json:"attendance_session_check_in_photo_url,omitempty"`
	AttendanceSessionCheckOutAt       *time.Time `json:"attendance_session_check_out_at,omitempty"`
	AttendanceSessionCheckOutOdometer *float64   `json:"attendance_session_check_out_odometer,omitempty"`
	AttendanceSessionCheckOutPhotoURL *string    `json:"attendance_session_check_out_photo_url,omitempty"`
	AttendanceSessionDurationMinutes  *int       `json:"attendance_session_duration_minutes,omitempty"`
	AttendanceSessionDistance         *float64   `json:"attendance_session_distance,omitempty"`
	AttendanceSessionIsOpen           bool       `json:"attendance_session_is_open"`
	AttendanceSessionCreatedAt        time.Time  `json:"attendance_session_created_at"`
	AttendanceSessionUpdatedAt        time.Time  `json:"attendance_session_updated_at"`
}

func FromSessionModel(m model.AttendanceSessionModel) AttendanceSessionResponse {
	return AttendanceSessionResponse{
		AttendanceSessionID:               m.AttendanceSessionID,
		AttendanceSessionUserID:           m.AttendanceSessionUserID,
		AttendanceSessionCheckInAt:        m.AttendanceSessionCheckInAt,
		AttendanceSessionCheckInOdometer:  m.AttendanceSessionCheckInOdometer,
		AttendanceSessionCheckInPhotoURL:  m.AttendanceSessionCheckInPhotoURL,
		AttendanceSessionCheckOutAt:       m.AttendanceSessionCheckOutAt,
		AttendanceSessionCheckOutOdometer: m.AttendanceSessionCheckOutOdometer,
		AttendanceSessionCheckOutPhotoURL: m.AttendanceSessionCheckOutPhotoURL,
		AttendanceSessionDurationMinutes:  m.AttendanceSessionDurationMinutes,
		AttendanceSessionDistance:         m.AttendanceSessionDistance,
		AttendanceSessionIsOpen:           m.IsOpen(),
		AttendanceSessionCreatedAt:        m.AttendanceSessionCreatedAt,
		AttendanceSessionUpdatedAt:        m.AttendanceSessionUpdatedAt,
	}
}

func FromSessionModels(list []model.AttendanceSessionModel) []AttendanceSessionResponse {
	out := make([]AttendanceSessionResponse, 0, len(list))
	for _, m := range list {
		out = append(out, FromSessionModel(m))
	}
	return out
}

func (r AttendanceSessionResponse) ToTracker() tracker.Session {
	return tracker.Session{
		ID:               r.AttendanceSessionID,
		UserID:           r.AttendanceSessionUserID,
		CheckInAt:        r.AttendanceSessionCheckInAt,
		CheckInOdometer:  r.AttendanceSessionCheckInOdometer,
		CheckInPhotoURL:  r.AttendanceSessionCheckInPhotoURL,
		CheckOutAt:       r.AttendanceSessionCheckOutAt,
		CheckOutOdometer: r.AttendanceSessionCheckOutOdometer,
		CheckOutPhotoURL: r.AttendanceSessionCheckOutPhotoURL,
		DurationMinutes:  r.AttendanceSessionDurationMinutes,
		Distance:         r.AttendanceSessionDistance,
	}
}

func SessionModelToTracker(m model.AttendanceSessionModel) tracker.Session {
	return FromSessionModel(m).ToTracker()
}
