package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttendanceSessionModel is one check-in → check-out cycle of a user.
// At most one row per user may have a NULL check-out (see databases.Migrate).
type AttendanceSessionModel struct {
	AttendanceSessionID     uuid.UUID `gorm:"type:uuid;primaryKey;column:attendance_session_id" json:"attendance_session_id"`
	AttendanceSessionUserID uuid.UUID `gorm:"type:uuid;not null;column:attendance_session_user_id;index:idx_attendance_sessions_user_checkin,priority:1" json:"attendance_session_user_id"`

	AttendanceSessionCheckInAt       time.Time `gorm:"not null;column:attendance_session_check_in_at;index:idx_attendance_sessions_user_checkin,priority:2" json:"attendance_session_check_in_at"`
	AttendanceSessionCheckInOdometer float64   `gorm:"not null;column:attendance_session_check_in_odometer" json:"attendance_session_check_in_odometer"`
	AttendanceSessionCheckInPhotoURL *string   `gorm:"type:text;column:attendance_session_check_in_photo_url" json:"attendance_session_check_in_photo_url,omitempty"`

	AttendanceSessionCheckOutAt       *time.Time `gorm:"column:attendance_session_check_out_at" json:"attendance_session_check_out_at,omitempty"`
	AttendanceSessionCheckOutOdometer *float64   `gorm:"column:attendance_session_check_out_odometer" json:"attendance_session_check_out_odometer,omitempty"`
	AttendanceSessionCheckOutPhotoURL *string    `gorm:"type:text;column:attendance_session_check_out_photo_url" json:"attendance_session_check_out_photo_url,omitempty"`

	// derived at check-out
	AttendanceSessionDurationMinutes *int     `gorm:"column:attendance_session_duration_minutes" json:"attendance_session_duration_minutes,omitempty"`
	AttendanceSessionDistance        *float64 `gorm:"column:attendance_session_distance" json:"attendance_session_distance,omitempty"`

	AttendanceSessionCreatedAt time.Time      `gorm:"column:attendance_session_created_at;autoCreateTime" json:"attendance_session_created_at"`
	AttendanceSessionUpdatedAt time.Time      `gorm:"column:attendance_session_updated_at;autoUpdateTime" json:"attendance_session_updated_at"`
	AttendanceSessionDeletedAt gorm.DeletedAt `gorm:"column:attendance_session_deleted_at;index" json:"attendance_session_deleted_at,omitempty"`
}

func (AttendanceSessionModel) TableName() string { return "attendance_sessions" }

func (m *AttendanceSessionModel) BeforeCreate(tx *gorm.DB) error {
	if m.AttendanceSessionID == uuid.Nil {
		m.AttendanceSessionID = uuid.New()
	}
	return nil
}

func (m *AttendanceSessionModel) IsOpen() bool {
	return m.AttendanceSessionCheckOutAt == nil
}
