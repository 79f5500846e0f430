package service

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	summarySheet  = "Daily Summary"
	sessionsSheet = "Sessions"
)

// SummaryRow is one daily_work_summaries row joined with its user.
type SummaryRow struct {
	UserID        uuid.UUID
	UserName      string
	FullName      string
	Date          datatypes.Date
	TotalMinutes  int
	TotalDistance float64
	FirstCheckIn  *time.Time
	LastCheckOut  *time.Time
	CheckInCount  int
}

// SessionRow is one attendance_sessions row joined with its user.
type SessionRow struct {
	SessionID        uuid.UUID
	UserName         string
	CheckInAt        time.Time
	CheckOutAt       *time.Time
	CheckInOdometer  float64
	CheckOutOdometer *float64
	DurationMinutes  *int
	Distance         *float64
}

type ReportFilter struct {
	UserID *uuid.UUID
	From   time.Time // inclusive calendar date
	To     time.Time // inclusive calendar date
}

func LoadSummaryRows(ctx context.Context, db *gorm.DB, f ReportFilter) ([]SummaryRow, error) {
	q := db.WithContext(ctx).
		Table("daily_work_summaries AS s").
		Select(`s.daily_work_summary_user_id AS user_id, u.user_name, u.full_name,
			s.daily_work_summary_date AS date,
			s.daily_work_summary_total_minutes AS total_minutes,
			s.daily_work_summary_total_distance AS total_distance,
			s.daily_work_summary_first_check_in AS first_check_in,
			s.daily_work_summary_last_check_out AS last_check_out,
			s.daily_work_summary_check_in_count AS check_in_count`).
		Joins("JOIN users u ON u.id = s.daily_work_summary_user_id").
		Where("s.daily_work_summary_date >= ? AND s.daily_work_summary_date <= ?", datatypes.Date(f.From), datatypes.Date(f.To))
	if f.UserID != nil {
		q = q.Where("s.daily_work_summary_user_id = ?", *f.UserID)
	}
	var rows []SummaryRow
	err := q.Order("s.daily_work_summary_date ASC").Order("u.user_name ASC").Scan(&rows).Error
	return rows, err
}

// LoadSessionRows returns non-deleted sessions checked in within [start, end).
func LoadSessionRows(ctx context.Context, db *gorm.DB, userID *uuid.UUID, start, end time.Time) ([]SessionRow, error) {
	q := db.WithContext(ctx).
		Table("attendance_sessions AS a").
		Select(`a.attendance_session_id AS session_id, u.user_name,
			a.attendance_session_check_in_at AS check_in_at,
			a.attendance_session_check_out_at AS check_out_at,
			a.attendance_session_check_in_odometer AS check_in_odometer,
			a.attendance_session_check_out_odometer AS check_out_odometer,
			a.attendance_session_duration_minutes AS duration_minutes,
			a.attendance_session_distance AS distance`).
		Joins("JOIN users u ON u.id = a.attendance_session_user_id").
		Where("a.attendance_session_deleted_at IS NULL").
		Where("a.attendance_session_check_in_at >= ? AND a.attendance_session_check_in_at < ?", start.UTC(), end.UTC())
	if userID != nil {
		q = q.Where("a.attendance_session_user_id = ?", *userID)
	}
	var rows []SessionRow
	err := q.Order("a.attendance_session_check_in_at ASC").Scan(&rows).Error
	return rows, err
}

/* ====================== XLSX ====================== */

func fmtTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

func writeHeader(f *excelize.File, sheet string, headers []interface{}, bold int) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}
	lastCol, _, _ := excelize.SplitCellName(last)
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// BuildWorkbook renders summaries and sessions into two sheets. Times are shown in loc.
func BuildWorkbook(summaries []SummaryRow, sessions []SessionRow, loc *time.Location) (*bytes.Buffer, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if err := writeHeader(f, summarySheet, []interface{}{
		"Date", "User", "Full name", "Sessions", "Working minutes", "Hours", "Distance", "First check-in", "Last check-out",
	}, bold); err != nil {
		return nil, err
	}
	for i, r := range summaries {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			time.Time(r.Date).Format("2006-01-02"),
			r.UserName,
			r.FullName,
			r.CheckInCount,
			r.TotalMinutes,
			float64(r.TotalMinutes) / 60,
			r.TotalDistance,
			fmtTime(r.FirstCheckIn, loc),
			fmtTime(r.LastCheckOut, loc),
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(sessionsSheet); err != nil {
		return nil, err
	}
	if err := writeHeader(f, sessionsSheet, []interface{}{
		"Session", "User", "Check-in", "Check-out", "Odometer in", "Odometer out", "Minutes", "Distance",
	}, bold); err != nil {
		return nil, err
	}
	for i, r := range sessions {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		checkIn := r.CheckInAt
		row := []interface{}{
			r.SessionID.String(),
			r.UserName,
			fmtTime(&checkIn, loc),
			fmtTime(r.CheckOutAt, loc),
			r.CheckInOdometer,
			optional(r.CheckOutOdometer),
			optional(r.DurationMinutes),
			optional(r.Distance),
		}
		if err := f.SetSheetRow(sessionsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	return f.WriteToBuffer()
}

func optional[T any](p *T) interface{} {
	if p == nil {
		return ""
	}
	return *p
}
