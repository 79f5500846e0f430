package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LocationSampleModel is immutable once written.
type LocationSampleModel struct {
	LocationSampleID        uuid.UUID `gorm:"type:uuid;primaryKey;column:location_sample_id" json:"location_sample_id"`
	LocationSampleUserID    uuid.UUID `gorm:"type:uuid;not null;column:location_sample_user_id;index" json:"location_sample_user_id"`
	LocationSampleSessionID uuid.UUID `gorm:"type:uuid;not null;column:location_sample_session_id;index:idx_location_samples_session_time,priority:1" json:"location_sample_session_id"`

	LocationSampleLatitude  float64  `gorm:"not null;column:location_sample_latitude" json:"location_sample_latitude"`
	LocationSampleLongitude float64  `gorm:"not null;column:location_sample_longitude" json:"location_sample_longitude"`
	LocationSampleAccuracy  *float64 `gorm:"column:location_sample_accuracy" json:"location_sample_accuracy,omitempty"`

	LocationSampleCapturedAt time.Time `gorm:"not null;column:location_sample_captured_at;index:idx_location_samples_session_time,priority:2" json:"location_sample_captured_at"`
	LocationSampleCreatedAt  time.Time `gorm:"column:location_sample_created_at;autoCreateTime" json:"location_sample_created_at"`
}

func (LocationSampleModel) TableName() string { return "location_samples" }

func (m *LocationSampleModel) BeforeCreate(tx *gorm.DB) error {
	if m.LocationSampleID == uuid.Nil {
		m.LocationSampleID = uuid.New()
	}
	return nil
}
