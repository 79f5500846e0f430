package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fieldforce_backend/internals/features/attendance/sessions/model"
)

/* ====================== DAILY SUMMARIES ====================== */

// UpsertDailySummary overwrites the (user, date) row; calling it twice with the
// same values leaves one identical row.
func UpsertDailySummary(ctx context.Context, db *gorm.DB, m *model.DailyWorkSummaryModel) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "daily_work_summary_user_id"},
			{Name: "daily_work_summary_date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"daily_work_summary_total_minutes",
			"daily_work_summary_total_distance",
			"daily_work_summary_first_check_in",
			"daily_work_summary_last_check_out",
			"daily_work_summary_check_in_count",
			"daily_work_summary_updated_at",
		}),
	}).Create(m).Error
}

func FindDailySummary(ctx context.Context, db *gorm.DB, userID uuid.UUID, date time.Time) (*model.DailyWorkSummaryModel, error) {
	var m model.DailyWorkSummaryModel
	if err := db.WithContext(ctx).
		Where("daily_work_summary_user_id = ? AND daily_work_summary_date = ?", userID, datatypes.Date(date)).
		First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

type SummaryFilter struct {
	UserID *uuid.UUID
	From   *time.Time // inclusive date
	To     *time.Time // inclusive date
}

func ListDailySummaries(ctx context.Context, db *gorm.DB, f SummaryFilter, offset, limit int) ([]model.DailyWorkSummaryModel, int64, error) {
	q := db.WithContext(ctx).Model(&model.DailyWorkSummaryModel{})
	if f.UserID != nil {
		q = q.Where("daily_work_summary_user_id = ?", *f.UserID)
	}
	if f.From != nil {
		q = q.Where("daily_work_summary_date >= ?", datatypes.Date(*f.From))
	}
	if f.To != nil {
		q = q.Where("daily_work_summary_date <= ?", datatypes.Date(*f.To))
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.DailyWorkSummaryModel
	qq := q.Order("daily_work_summary_date DESC").Order("daily_work_summary_user_id ASC")
	if limit > 0 {
		qq = qq.Offset(offset).Limit(limit)
	}
	if err := qq.Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
