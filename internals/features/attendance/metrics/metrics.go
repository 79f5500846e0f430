// Package metrics derives the numbers stored at check-out: session duration,
// odometer distance, the per-day work summary, and duplicate-sample detection.
package metrics

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultDurationMinutes is used when the check-in time cannot be read back.
	DefaultDurationMinutes = 60
	// DefaultDistance is used when the check-in odometer cannot be read back.
	DefaultDistance = 5.0

	DuplicateWindow  = 5 * time.Second
	DuplicateEpsilon = 0.0001
)

// DurationMinutes = max(1, round(out-in in minutes)).
func DurationMinutes(checkIn, checkOut time.Time) int {
	minutes := int(math.Round(checkOut.Sub(checkIn).Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// DurationOrDefault falls back to DefaultDurationMinutes when checkIn is unknown.
func DurationOrDefault(checkIn *time.Time, checkOut time.Time) (minutes int, usedDefault bool) {
	if checkIn == nil || checkIn.IsZero() {
		return DefaultDurationMinutes, true
	}
	return DurationMinutes(*checkIn, checkOut), false
}

// Distance = max(0, out-in). clamped reports whether the odometer went backwards.
func Distance(checkInReading, checkOutReading float64) (distance float64, clamped bool) {
	d := checkOutReading - checkInReading
	if d < 0 {
		return 0, true
	}
	return d, false
}

// DistanceOrDefault falls back to DefaultDistance when the check-in reading is unknown.
func DistanceOrDefault(checkInReading *float64, checkOutReading float64) (distance float64, clamped, usedDefault bool) {
	if checkInReading == nil {
		return DefaultDistance, false, true
	}
	d, c := Distance(*checkInReading, checkOutReading)
	return d, c, false
}

// ValidReading: finite and non-negative.
func ValidReading(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

/* ===============================
   Daily summary
=================================*/

type SessionFacts struct {
	CheckInAt       time.Time
	CheckOutAt      *time.Time
	DurationMinutes *int
	Distance        *float64
}

type DailySummary struct {
	UserID        uuid.UUID
	Date          time.Time // midnight in the workday location
	TotalMinutes  int
	TotalDistance float64
	FirstCheckIn  *time.Time
	LastCheckOut  *time.Time
	CheckInCount  int
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Summarize aggregates every session of one user for one day. The result replaces the
// stored row; calling it twice with the same input yields the same row.
func Summarize(userID uuid.UUID, day time.Time, sessions []SessionFacts) DailySummary {
	out := DailySummary{UserID: userID, Date: day}
	for _, s := range sessions {
		out.CheckInCount++

		in := s.CheckInAt
		if out.FirstCheckIn == nil || in.Before(*out.FirstCheckIn) {
			v := in
			out.FirstCheckIn = &v
		}
		if s.CheckOutAt == nil {
			continue
		}
		if out.LastCheckOut == nil || s.CheckOutAt.After(*out.LastCheckOut) {
			v := *s.CheckOutAt
			out.LastCheckOut = &v
		}
		if s.DurationMinutes != nil {
			out.TotalMinutes += *s.DurationMinutes
		}
		if s.Distance != nil {
			out.TotalDistance += *s.Distance
		}
	}
	return out
}

/* ===============================
   Duplicate samples
=================================*/

type Point struct {
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

// IsDuplicateSample: captured within DuplicateWindow of each other at coordinates that
// differ by less than DuplicateEpsilon on both axes. Callers compare samples of the
// same (user, session) only.
func IsDuplicateSample(a, b Point) bool {
	dt := a.CapturedAt.Sub(b.CapturedAt)
	if dt < 0 {
		dt = -dt
	}
	if dt > DuplicateWindow {
		return false
	}
	return math.Abs(a.Latitude-b.Latitude) < DuplicateEpsilon &&
		math.Abs(a.Longitude-b.Longitude) < DuplicateEpsilon
}
