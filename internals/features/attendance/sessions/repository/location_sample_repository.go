package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fieldforce_backend/internals/features/attendance/metrics"
	"fieldforce_backend/internals/features/attendance/sessions/model"
)

/* ====================== LOCATION SAMPLES ====================== */

// InsertLocationSample stores a sample for an open session of its user. When a
// near-identical sample (metrics.IsDuplicateSample) already exists, that row is
// returned with duplicate=true and nothing is written.
func InsertLocationSample(ctx context.Context, db *gorm.DB, m *model.LocationSampleModel) (stored *model.LocationSampleModel, duplicate bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row lock makes the duplicate check and the insert atomic against
		// a concurrent sample for the same session and against checkout.
		sess, err := lockUserSession(ctx, tx, m.LocationSampleUserID, m.LocationSampleSessionID)
		if err != nil {
			return err
		}
		if !sess.IsOpen() {
			return ErrSessionClosed
		}

		at := m.LocationSampleCapturedAt.UTC()
		var candidates []model.LocationSampleModel
		if err := tx.
			Where("location_sample_user_id = ? AND location_sample_session_id = ?", m.LocationSampleUserID, m.LocationSampleSessionID).
			Where("location_sample_captured_at >= ? AND location_sample_captured_at <= ?",
				at.Add(-metrics.DuplicateWindow), at.Add(metrics.DuplicateWindow)).
			Order("location_sample_captured_at DESC").
			Find(&candidates).Error; err != nil {
			return err
		}
		incoming := metrics.Point{Latitude: m.LocationSampleLatitude, Longitude: m.LocationSampleLongitude, CapturedAt: at}
		for i := range candidates {
			c := candidates[i]
			if metrics.IsDuplicateSample(incoming, metrics.Point{
				Latitude:   c.LocationSampleLatitude,
				Longitude:  c.LocationSampleLongitude,
				CapturedAt: c.LocationSampleCapturedAt,
			}) {
				stored, duplicate = &c, true
				return nil
			}
		}

		m.LocationSampleCapturedAt = at
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		stored = m
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, duplicate, nil
}

func ListSessionSamples(ctx context.Context, db *gorm.DB, sessionID uuid.UUID) ([]model.LocationSampleModel, error) {
	var list []model.LocationSampleModel
	err := db.WithContext(ctx).
		Where("location_sample_session_id = ?", sessionID).
		Order("location_sample_captured_at ASC").
		Find(&list).Error
	return list, err
}

func CountSessionSamples(ctx context.Context, db *gorm.DB, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&model.LocationSampleModel{}).
		Where("location_sample_session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

// LatestSampleBefore is used by reports to show the last known position.
func LatestSampleBefore(ctx context.Context, db *gorm.DB, sessionID uuid.UUID, before time.Time) (*model.LocationSampleModel, error) {
	var m model.LocationSampleModel
	if err := db.WithContext(ctx).
		Where("location_sample_session_id = ? AND location_sample_captured_at <= ?", sessionID, before.UTC()).
		Order("location_sample_captured_at DESC").
		First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}
