package dto

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"fieldforce_backend/internals/features/attendance/metrics"
	"fieldforce_backend/internals/features/attendance/sessions/model"
)

const DateLayout = "2006-01-02"

// UpsertDailySummaryRequest: body of PUT /attendance/summaries/:date
type UpsertDailySummaryRequest struct {
	TotalMinutes  *int       `json:"daily_work_summary_total_minutes" validate:"required,gte=0"`
	TotalDistance *float64   `json:"daily_work_summary_total_distance" validate:"required,gte=0"`
	FirstCheckIn  *time.Time `json:"daily_work_summary_first_check_in,omitempty"`
	LastCheckOut  *time.Time `json:"daily_work_summary_last_check_out,omitempty"`
	CheckInCount  *int       `json:"daily_work_summary_check_in_count" validate:"required,gte=0"`
}

// DateOnly keeps the calendar date of t (in t's location) at UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func (r *UpsertDailySummaryRequest) ToModel(userID uuid.UUID, date time.Time) *model.DailyWorkSummaryModel {
	return &model.DailyWorkSummaryModel{
		DailyWorkSummaryUserID:        userID,
		DailyWorkSummaryDate:          datatypes.Date(DateOnly(date)),
		DailyWorkSummaryTotalMinutes:  *r.TotalMinutes,
		DailyWorkSummaryTotalDistance: *r.TotalDistance,
		DailyWorkSummaryFirstCheckIn:  utcPtr(r.FirstCheckIn),
		DailyWorkSummaryLastCheckOut:  utcPtr(r.LastCheckOut),
		DailyWorkSummaryCheckInCount:  *r.CheckInCount,
	}
}

func SummaryRequestFromMetrics(s metrics.DailySummary) UpsertDailySummaryRequest {
	minutes, distance, count := s.TotalMinutes, s.TotalDistance, s.CheckInCount
	return UpsertDailySummaryRequest{
		TotalMinutes:  &minutes,
		TotalDistance: &distance,
		FirstCheckIn:  s.FirstCheckIn,
		LastCheckOut:  s.LastCheckOut,
		CheckInCount:  &count,
	}
}

func SummaryModelFromMetrics(s metrics.DailySummary) *model.DailyWorkSummaryModel {
	req := SummaryRequestFromMetrics(s)
	return req.ToModel(s.UserID, s.Date)
}

type DailyWorkSummaryResponse struct {
	DailyWorkSummaryID            uuid.UUID  `json:"daily_work_summary_id"`
	DailyWorkSummaryUserID        uuid.UUID  `json:"daily_work_summary_user_id"`
	DailyWorkSummaryDate          string     `json:"daily_work_summary_date"`
	DailyWorkSummaryTotalMinutes  int        `json:"daily_work_summary_total_minutes"`
	DailyWorkSummaryTotalDistance float64    `json:"daily_work_summary_total_distance"`
	DailyWorkSummaryFirstCheckIn  *time.Time `json:"daily_work_summary_first_check_in,omitempty"`
	DailyWorkSummaryLastCheckOut  *time.Time `json:"daily_work_summary_last_check_out,omitempty"`
	DailyWorkSummaryCheckInCount  int        `json:"daily_work_summary_check_in_count"`
	DailyWorkSummaryUpdatedAt     time.Time  `json:"daily_work_summary_updated_at"`
}

func FromSummaryModel(m model.DailyWorkSummaryModel) DailyWorkSummaryResponse {
	return DailyWorkSummaryResponse{
		DailyWorkSummaryID:            m.DailyWorkSummaryID,
		DailyWorkSummaryUserID:        m.DailyWorkSummaryUserID,
		DailyWorkSummaryDate:          time.Time(m.DailyWorkSummaryDate).Format(DateLayout),
		DailyWorkSummaryTotalMinutes:  m.DailyWorkSummaryTotalMinutes,
		DailyWorkSummaryTotalDistance: m.DailyWorkSummaryTotalDistance,
		DailyWorkSummaryFirstCheckIn:  m.DailyWorkSummaryFirstCheckIn,
		DailyWorkSummaryLastCheckOut:  m.DailyWorkSummaryLastCheckOut,
		DailyWorkSummaryCheckInCount:  m.DailyWorkSummaryCheckInCount,
		DailyWorkSummaryUpdatedAt:     m.DailyWorkSummaryUpdatedAt,
	}
}

func FromSummaryModels(list []model.DailyWorkSummaryModel) []DailyWorkSummaryResponse {
	out := make([]DailyWorkSummaryResponse, 0, len(list))
	for _, m := range list {
		out = append(out, FromSummaryModel(m))
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
