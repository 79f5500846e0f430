package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fieldforce_backend/internals/features/attendance/sessions/model"
	userModel "fieldforce_backend/internals/features/users/user/model"
)

var (
	ErrNotFound          = errors.New("attendance record not found")
	ErrOpenSessionExists = errors.New("user already has an open attendance session")
	ErrSessionClosed     = errors.New("attendance session already checked out")
)

// IsUniqueViolation covers pgx, lib/pq and sqlite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

/* ====================== SESSIONS ====================== */

// CreateSession inserts a check-in. The partial unique index backs the pre-check
// when two devices race.
func CreateSession(ctx context.Context, db *gorm.DB, m *model.AttendanceSessionModel) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&model.AttendanceSessionModel{}).
			Where("attendance_session_user_id = ? AND attendance_session_check_out_at IS NULL", m.AttendanceSessionUserID).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrOpenSessionExists
		}
		if err := tx.Create(m).Error; err != nil {
			if IsUniqueViolation(err) {
				return ErrOpenSessionExists
			}
			return err
		}
		return nil
	})
}

func FindSessionByID(ctx context.Context, db *gorm.DB, sessionID uuid.UUID) (*model.AttendanceSessionModel, error) {
	var m model.AttendanceSessionModel
	if err := db.WithContext(ctx).
		Where("attendance_session_id = ?", sessionID).
		First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// FindUserSession scopes the lookup to the owner; another user's id reads as not found.
func FindUserSession(ctx context.Context, db *gorm.DB, userID, sessionID uuid.UUID) (*model.AttendanceSessionModel, error) {
	var m model.AttendanceSessionModel
	if err := db.WithContext(ctx).
		Where("attendance_session_id = ? AND attendance_session_user_id = ?", sessionID, userID).
		First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// lockUserSession is FindUserSession with SELECT ... FOR UPDATE, so writers that
// check the session's open state inside tx are serialized on that row. SQLite
// drops the clause; its single writer already serializes them.
func lockUserSession(ctx context.Context, tx *gorm.DB, userID, sessionID uuid.UUID) (*model.AttendanceSessionModel, error) {
	return FindUserSession(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, sessionID)
}

// FindOpenSession returns (nil, nil) when the user is checked out.
func FindOpenSession(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*model.AttendanceSessionModel, error) {
	var m model.AttendanceSessionModel
	err := db.WithContext(ctx).
		Where("attendance_session_user_id = ? AND attendance_session_check_out_at IS NULL", userID).
		Order("attendance_session_check_in_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateUserSession applies a partial update. Setting the check-out on a session that
// already has one fails with ErrSessionClosed, so a checkout lands at most once.
func UpdateUserSession(ctx context.Context, db *gorm.DB, userID, sessionID uuid.UUID, updates map[string]interface{}) (*model.AttendanceSessionModel, error) {
	var out model.AttendanceSessionModel
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockUserSession(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			out = *cur
			return nil
		}

		q := tx.Model(&model.AttendanceSessionModel{}).
			Where("attendance_session_id = ? AND attendance_session_user_id = ?", sessionID, userID)
		if _, closing := updates["attendance_session_check_out_at"]; closing {
			if !cur.IsOpen() {
				return ErrSessionClosed
			}
			q = q.Where("attendance_session_check_out_at IS NULL")
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionClosed
		}

		fresh, err := FindUserSession(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		out = *fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteOpenUserSession hard-deletes an open session and its samples. Used to
// undo a check-in that could not complete.
func DeleteOpenUserSession(ctx context.Context, db *gorm.DB, userID, sessionID uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockUserSession(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if !cur.IsOpen() {
			return ErrSessionClosed
		}
		if err := tx.Where("location_sample_session_id = ?", sessionID).
			Delete(&model.LocationSampleModel{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().
			Where("attendance_session_id = ?", sessionID).
			Delete(&model.AttendanceSessionModel{}).Error
	})
}

// SoftDeleteSession is the administrative delete; samples stay for audit.
func SoftDeleteSession(ctx context.Context, db *gorm.DB, sessionID uuid.UUID) error {
	res := db.WithContext(ctx).
		Where("attendance_session_id = ?", sessionID).
		Delete(&model.AttendanceSessionModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserSessionsForDay returns sessions that started or ended within [start, end).
func ListUserSessionsForDay(ctx context.Context, db *gorm.DB, userID uuid.UUID, start, end time.Time) ([]model.AttendanceSessionModel, error) {
	var list []model.AttendanceSessionModel
	err := db.WithContext(ctx).
		Where("attendance_session_user_id = ?", userID).
		Where(
			db.Session(&gorm.Session{NewDB: true}).
				Where("attendance_session_check_in_at >= ? AND attendance_session_check_in_at < ?", start.UTC(), end.UTC()).
				Or("attendance_session_check_out_at >= ? AND attendance_session_check_out_at < ?", start.UTC(), end.UTC()),
		).
		Order("attendance_session_check_in_at ASC").
		Find(&list).Error
	return list, err
}

type SessionFilter struct {
	UserID   *uuid.UUID
	From     *time.Time // check-in at >= From
	To       *time.Time // check-in at < To
	OnlyOpen bool
}

func ListSessions(ctx context.Context, db *gorm.DB, f SessionFilter, offset, limit int) ([]model.AttendanceSessionModel, int64, error) {
	q := db.WithContext(ctx).Model(&model.AttendanceSessionModel{})
	if f.UserID != nil {
		q = q.Where("attendance_session_user_id = ?", *f.UserID)
	}
	if f.From != nil {
		q = q.Where("attendance_session_check_in_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("attendance_session_check_in_at < ?", f.To.UTC())
	}
	if f.OnlyOpen {
		q = q.Where("attendance_session_check_out_at IS NULL")
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.AttendanceSessionModel
	if err := q.Order("attendance_session_check_in_at DESC").
		Offset(offset).Limit(limit).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

/* ====================== USERS ====================== */

// SetUserOnDuty flips the field-active flag toggled by check-in and checkout.
func SetUserOnDuty(ctx context.Context, db *gorm.DB, userID uuid.UUID, onDuty bool) error {
	res := db.WithContext(ctx).
		Model(&userModel.UserModel{}).
		Where("id = ?", userID).
		Update("is_on_duty", onDuty)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
