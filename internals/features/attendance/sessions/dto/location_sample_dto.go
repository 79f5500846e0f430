package dto

import (
	"time"

	"github.com/google/uuid"

	"fieldforce_backend/internals/features/attendance/sessions/model"
	"fieldforce_backend/internals/features/attendance/tracker"
)

type CreateLocationSampleRequest struct {
	Latitude   *float64   `json:"location_sample_latitude" validate:"required,gte=-90,lte=90"`
	Longitude  *float64   `json:"location_sample_longitude" validate:"required,gte=-180,lte=180"`
	Accuracy   *float64   `json:"location_sample_accuracy,omitempty" validate:"omitempty,gte=0"`
	CapturedAt *time.Time `json:"location_sample_captured_at,omitempty"`
}

func (r *CreateLocationSampleRequest) ToModel(userID, sessionID uuid.UUID, now time.Time) *model.LocationSampleModel {
	at := now
	if r.CapturedAt != nil {
		at = *r.CapturedAt
	}
	return &model.LocationSampleModel{
		LocationSampleUserID:     userID,
		LocationSampleSessionID:  sessionID,
		LocationSampleLatitude:   *r.Latitude,
		LocationSampleLongitude:  *r.Longitude,
		LocationSampleAccuracy:   r.Accuracy,
		LocationSampleCapturedAt: at.UTC(),
	}
}

func SampleRequestFromTracker(s tracker.LocationSample) CreateLocationSampleRequest {
	lat, lng, at := s.Latitude, s.Longitude, s.CapturedAt
	return CreateLocationSampleRequest{Latitude: &lat, Longitude: &lng, Accuracy: s.Accuracy, CapturedAt: &at}
}

type LocationSampleResponse struct {
	LocationSampleID         uuid.UUID `json:"location_sample_id"`
	LocationSampleUserID     uuid.UUID `json:"location_sample_user_id"`
	LocationSampleSessionID  uuid.UUID `json:"location_sample_session_id"`
	LocationSampleLatitude   float64   `json:"location_sample_latitude"`
	LocationSampleLongitude  float64   `json:"location_sample_longitude"`
	LocationSampleAccuracy   *float64  `json:"location_sample_accuracy,omitempty"`
	LocationSampleCapturedAt time.Time `json:"location_sample_captured_at"`
	LocationSampleDuplicate  bool      `json:"location_sample_duplicate,omitempty"`
}

func FromSampleModel(m model.LocationSampleModel) LocationSampleResponse {
	return LocationSampleResponse{
		LocationSampleID:         m.LocationSampleID,
		LocationSampleUserID:     m.LocationSampleUserID,
		LocationSampleSessionID:  m.LocationSampleSessionID,
		LocationSampleLatitude:   m.LocationSampleLatitude,
		LocationSampleLongitude:  m.LocationSampleLongitude,
		LocationSampleAccuracy:   m.LocationSampleAccuracy,
		LocationSampleCapturedAt: m.LocationSampleCapturedAt,
	}
}

func FromSampleModels(list []model.LocationSampleModel) []LocationSampleResponse {
	out := make([]LocationSampleResponse, 0, len(list))
	for _, m := range list {
		out = append(out, FromSampleModel(m))
	}
	return out
}

func (r LocationSampleResponse) ToTracker() tracker.LocationSample {
	return tracker.LocationSample{
		ID:         r.LocationSampleID,
		UserID:     r.LocationSampleUserID,
		SessionID:  r.LocationSampleSessionID,
		Latitude:   r.LocationSampleLatitude,
		Longitude:  r.LocationSampleLongitude,
		Accuracy:   r.LocationSampleAccuracy,
		CapturedAt: r.LocationSampleCapturedAt,
	}
}
