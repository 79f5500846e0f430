package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DailyWorkSummaryModel: one row per (user, date), overwritten on every check-out.
type DailyWorkSummaryModel struct {
	DailyWorkSummaryID     uuid.UUID      `gorm:"type:uuid;primaryKey;column:daily_work_summary_id" json:"daily_work_summary_id"`
	DailyWorkSummaryUserID uuid.UUID      `gorm:"type:uuid;not null;column:daily_work_summary_user_id;uniqueIndex:uq_daily_work_summaries_user_date,priority:1" json:"daily_work_summary_user_id"`
	DailyWorkSummaryDate   datatypes.Date `gorm:"type:date;not null;column:daily_work_summary_date;uniqueIndex:uq_daily_work_summaries_user_date,priority:2" json:"daily_work_summary_date"`

	DailyWorkSummaryTotalMinutes  int        `gorm:"not null;default:0;column:daily_work_summary_total_minutes" json:"daily_work_summary_total_minutes"`
	DailyWorkSummaryTotalDistance float64    `gorm:"not null;default:0;column:daily_work_summary_total_distance" json:"daily_work_summary_total_distance"`
	DailyWorkSummaryFirstCheckIn  *time.Time `gorm:"column:daily_work_summary_first_check_in" json:"daily_work_summary_first_check_in,omitempty"`
	DailyWorkSummaryLastCheckOut  *time.Time `gorm:"column:daily_work_summary_last_check_out" json:"daily_work_summary_last_check_out,omitempty"`
	DailyWorkSummaryCheckInCount  int        `gorm:"not null;default:0;column:daily_work_summary_check_in_count" json:"daily_work_summary_check_in_count"`

	DailyWorkSummaryCreatedAt time.Time `gorm:"column:daily_work_summary_created_at;autoCreateTime" json:"daily_work_summary_created_at"`
	DailyWorkSummaryUpdatedAt time.Time `gorm:"column:daily_work_summary_updated_at;autoUpdateTime" json:"daily_work_summary_updated_at"`
}

func (DailyWorkSummaryModel) TableName() string { return "daily_work_summaries" }

func (m *DailyWorkSummaryModel) BeforeCreate(tx *gorm.DB) error {
	if m.DailyWorkSummaryID == uuid.Nil {
		m.DailyWorkSummaryID = uuid.New()
	}
	return nil
}
