// Package tracker holds the field agent's attendance state machine and the
// location sampler that runs while a session is open.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"fieldforce_backend/internals/features/attendance/metrics"
)

type State string

const (
	StateCheckedOut State = "CHECKED_OUT"
	StateCheckedIn  State = "CHECKED_IN"
)

var ErrClosed = errors.New("tracker closed")

type CheckInRequest struct {
	Odometer float64
	PhotoURL *string
	Location *Position
}

type CheckInResult struct {
	SessionID        uuid.UUID `json:"session_id"`
	CheckInAt        time.Time `json:"check_in_at"`
	LocationRecorded bool      `json:"location_recorded"`
}

type CheckOutRequest struct {
	Odometer float64
	PhotoURL *string
	Location *Position
}

type CheckOutResult struct {
	SessionID       uuid.UUID             `json:"session_id"`
	CheckOutAt      time.Time             `json:"check_out_at"`
	DurationMinutes int                   `json:"duration_minutes"`
	Distance        float64               `json:"distance"`
	DistanceClamped bool                  `json:"distance_clamped"`
	DefaultDuration bool                  `json:"default_duration"`
	DefaultDistance bool                  `json:"default_distance"`
	Reconciled      bool                  `json:"reconciled"` // closed by an earlier attempt that outlived its timeout
	Summary         *metrics.DailySummary `json:"summary,omitempty"`
	Warnings        []string              `json:"warnings,omitempty"`
}

type Status struct {
	State              State         `json:"state"`
	SessionID          *uuid.UUID    `json:"session_id,omitempty"`
	CheckInAt          *time.Time    `json:"check_in_at,omitempty"`
	CheckoutInProgress bool          `json:"checkout_in_progress"`
	Sampler            *SamplerStats `json:"sampler,omitempty"`
}

// Tracker is the per-user session state machine (CHECKED_OUT <-> CHECKED_IN).
// Every exported operation returns *Error on failure.
type Tracker struct {
	gw     Gateway
	geo    Geolocator
	cfg    Config
	userID uuid.UUID

	checkInFlight  *flight
	checkOutFlight *flight

	mu            sync.Mutex
	state         State
	sessionID     uuid.UUID
	checkInAt     time.Time
	sampler       *Sampler
	suppressUntil time.Time
	closed        bool
}

func New(gw Gateway, geo Geolocator, userID uuid.UUID, cfg Config) *Tracker {
	cfg = cfg.withDefaults()
	return &Tracker{
		gw:             gw,
		geo:            geo,
		cfg:            cfg,
		userID:         userID,
		checkInFlight:  newFlight("check-in", cfg.WatchdogTimeout),
		checkOutFlight: newFlight("checkout", cfg.WatchdogTimeout),
		state:          StateCheckedOut,
	}
}

/* ===============================
   Check-in
=================================*/

func (t *Tracker) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	const op = "checkin"
	if t.userID == uuid.Nil {
		return nil, newError(KindValidation, op, "sign in first", ErrUnauthenticated)
	}
	if !metrics.ValidReading(req.Odometer) {
		return nil, newError(KindValidation, op, "invalid odometer reading", ErrInvalidOdometer)
	}
	if req.Location != nil && !req.Location.Valid() {
		return nil, newError(KindValidation, op, "invalid location", ErrInvalidLocation)
	}

	tok, ok := t.checkInFlight.acquire()
	if !ok {
		return nil, newError(KindValidation, op, "a check-in is already being processed", ErrCheckinInProgress)
	}
	defer t.checkInFlight.release(tok)

	t.mu.Lock()
	closed, state := t.closed, t.state
	t.mu.Unlock()
	if closed {
		return nil, newError(KindValidation, op, "tracker is shut down", ErrClosed)
	}
	if state != StateCheckedOut {
		return nil, newError(KindValidation, op, "already checked in", ErrAlreadyCheckedIn)
	}

	res, err := t.doCheckIn(ctx, req)
	if err != nil {
		e := classify(op, err)
		log.Printf("[TRACKER] ❌ check-in failed (%s): %v", e.Kind, e)
		return nil, e
	}

	t.mu.Lock()
	t.state = StateCheckedIn
	t.sessionID = res.SessionID
	t.checkInAt = res.CheckInAt
	s := newSampler(t.gw, t.geo, t.cfg, t.userID, res.SessionID, res.CheckInAt)
	if res.LocationRecorded {
		s.recordInitial(res.CheckInAt, t.cfg.InitialGrace)
	}
	if t.suppressUntil.After(res.CheckInAt) {
		s.SuppressUntil(t.suppressUntil)
	}
	t.sampler = s
	t.mu.Unlock()
	s.start()

	log.Printf("[TRACKER] ✅ checked in, session %s", res.SessionID)
	return res, nil
}

// doCheckIn runs the check-in writes under one OperationTimeout deadline. The
// rollback of a half-done check-in is not part of that window, so the caller
// learns whether the session was removed.
func (t *Tracker) doCheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	now := t.cfg.Now().UTC()
	dctx, cancel := context.WithTimeout(ctx, t.cfg.OperationTimeout)
	defer cancel()

	id, err := runWithTimeout(dctx, t.cfg.OperationTimeout, func(ctx context.Context) (uuid.UUID, error) {
		return t.gw.CreateSession(ctx, NewSession{
			UserID:    t.userID,
			CheckInAt: now,
			Odometer:  req.Odometer,
			PhotoURL:  req.PhotoURL,
		})
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(KindBackend, "checkin", "an open session already exists for this user; run status to resume it", err)
		}
		return nil, err
	}

	_, err = runWithTimeout(dctx, t.cfg.OperationTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.gw.SetUserActive(ctx, t.userID, true)
	})
	if err != nil {
		return nil, t.rollbackCheckIn(ctx, id, err)
	}

	res := &CheckInResult{SessionID: id, CheckInAt: now}
	if req.Location != nil {
		_, err := runWithTimeout(dctx, t.cfg.OperationTimeout, func(ctx context.Context) (*LocationSample, error) {
			s, _, err := t.gw.InsertLocationSample(ctx, LocationSample{
				UserID:     t.userID,
				SessionID:  id,
				Latitude:   req.Location.Latitude,
				Longitude:  req.Location.Longitude,
				Accuracy:   req.Location.Accuracy,
				CapturedAt: now,
			})
			return s, err
		})
		if err != nil {
			log.Printf("[TRACKER] ⚠️ check-in location not saved for session %s: %v", id, err)
		} else {
			res.LocationRecorded = true
		}
	}
	return res, nil
}

// rollbackCheckIn deletes the session created by a check-in that could not finish.
// It runs even after the caller has given up on the operation.
func (t *Tracker) rollbackCheckIn(ctx context.Context, sessionID uuid.UUID, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.OperationTimeout)
	defer cancel()

	_, err := runWithTimeout(rctx, t.cfg.OperationTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.gw.DeleteSession(ctx, sessionID)
	})
	if err != nil {
		log.Printf("[TRACKER] ❌ rollback of session %s failed: %v", sessionID, err)
		return newError(KindBackend, "checkin",
			fmt.Sprintf("could not mark user active and rollback of session %s failed", sessionID), cause)
	}
	log.Printf("[TRACKER] ↩️ session %s rolled back: %v", sessionID, cause)
	return newError(KindBackend, "checkin", "could not mark user active; check-in was rolled back", cause)
}

/* ===============================
   Checkout
=================================*/

func (t *Tracker) CheckOut(ctx context.Context, req CheckOutRequest) (*CheckOutResult, error) {
	const op = "checkout"
	if !metrics.ValidReading(req.Odometer) {
		return nil, newError(KindValidation, op, "invalid odometer reading", ErrInvalidOdometer)
	}
	if req.Location != nil && !req.Location.Valid() {
		return nil, newError(KindValidation, op, "invalid location", ErrInvalidLocation)
	}

	if _, open := t.openSession(); !open {
		return nil, newError(KindValidation, op, "no open session", ErrNotCheckedIn)
	}

	tok, ok := t.checkOutFlight.acquire()
	if !ok {
		return nil, newError(KindValidation, op, "a checkout is already being processed", ErrCheckoutInProgress)
	}
	defer t.checkOutFlight.release(tok)

	sessionID, open := t.openSession()
	if !open {
		return nil, newError(KindValidation, op, "no open session", ErrNotCheckedIn)
	}

	res, err := runWithTimeout(ctx, t.cfg.OperationTimeout, func(ctx context.Context) (*CheckOutResult, error) {
		return t.doCheckOut(ctx, sessionID, req)
	})
	if err != nil {
		e := classify(op, err)
		if errors.Is(err, ErrNotFound) {
			log.Printf("[TRACKER] ⚠️ session %s no longer exists on the server, resetting", sessionID)
			t.settle(sessionID)
		}
		log.Printf("[TRACKER] ❌ checkout failed (%s): %v", e.Kind, e)
		return nil, e
	}

	t.settle(sessionID)
	log.Printf("[TRACKER] ✅ checked out, session %s: %d min, %.1f km", sessionID, res.DurationMinutes, res.Distance)
	return res, nil
}

func (t *Tracker) doCheckOut(ctx context.Context, sessionID uuid.UUID, req CheckOutRequest) (*CheckOutResult, error) {
	now := t.cfg.Now().UTC()
	res := &CheckOutResult{SessionID: sessionID, CheckOutAt: now}

	var (
		checkInAt       *time.Time
		checkInOdometer *float64
	)
	sess, err := t.gw.GetSession(ctx, sessionID)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, err
	case err != nil:
		log.Printf("[TRACKER] ⚠️ could not read back session %s, using default metrics: %v", sessionID, err)
		res.Warnings = append(res.Warnings, "check-in record unavailable; default duration and distance used")
	case sess != nil && !sess.IsOpen():
		fillFromStored(res, sess)
		t.afterCheckOut(ctx, res)
		return res, nil
	case sess != nil:
		checkInAt = &sess.CheckInAt
		checkInOdometer = &sess.CheckInOdometer
	}

	res.DurationMinutes, res.DefaultDuration = metrics.DurationOrDefault(checkInAt, now)
	res.Distance, res.DistanceClamped, res.DefaultDistance = metrics.DistanceOrDefault(checkInOdometer, req.Odometer)
	if res.DistanceClamped {
		log.Printf("[TRACKER] ⚠️ odometer decreased on session %s (%.1f < %.1f), distance clamped to 0",
			sessionID, req.Odometer, *checkInOdometer)
		res.Warnings = append(res.Warnings, "odometer reading is lower than at check-in; distance recorded as 0")
	}

	if req.Location != nil {
		_, _, err := t.gw.InsertLocationSample(ctx, LocationSample{
			UserID:     t.userID,
			SessionID:  sessionID,
			Latitude:   req.Location.Latitude,
			Longitude:  req.Location.Longitude,
			Accuracy:   req.Location.Accuracy,
			CapturedAt: now,
		})
		if err != nil {
			log.Printf("[TRACKER] ⚠️ checkout location not saved for session %s: %v", sessionID, err)
		}
	}

	odometer := req.Odometer
	update := SessionUpdate{
		CheckOutAt:       &now,
		CheckOutOdometer: &odometer,
		CheckOutPhotoURL: req.PhotoURL,
		DurationMinutes:  &res.DurationMinutes,
		Distance:         &res.Distance,
	}
	if err := t.gw.UpdateSession(ctx, sessionID, update); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		stored, gerr := t.gw.GetSession(ctx, sessionID)
		if gerr != nil || stored == nil || stored.IsOpen() {
			return nil, err
		}
		fillFromStored(res, stored)
	}

	t.afterCheckOut(ctx, res)
	return res, nil
}

// afterCheckOut runs the non-fatal follow-ups: clear the on-duty flag and rebuild
// today's summary. Failures become warnings.
func (t *Tracker) afterCheckOut(ctx context.Context, res *CheckOutResult) {
	if err := t.gw.SetUserActive(ctx, t.userID, false); err != nil {
		log.Printf("[TRACKER] ⚠️ could not mark user inactive: %v", err)
		res.Warnings = append(res.Warnings, "could not clear on-duty flag")
	}

	day, _ := metrics.DayBounds(res.CheckOutAt, t.cfg.Location)
	sessions, err := t.gw.ListSessionsForDay(ctx, t.userID, day)
	if err != nil {
		log.Printf("[TRACKER] ⚠️ daily summary skipped, listing sessions failed: %v", err)
		res.Warnings = append(res.Warnings, "daily summary not updated")
		return
	}
	facts := make([]metrics.SessionFacts, 0, len(sessions))
	for _, s := range sessions {
		facts = append(facts, s.Facts())
	}
	summary := metrics.Summarize(t.userID, day, facts)
	if err := t.gw.UpsertDailySummary(ctx, summary); err != nil {
		log.Printf("[TRACKER] ⚠️ daily summary upsert failed: %v", err)
		res.Warnings = append(res.Warnings, "daily summary not updated")
		return
	}
	res.Summary = &summary
}

func fillFromStored(res *CheckOutResult, s *Session) {
	res.Reconciled = true
	if s.CheckOutAt != nil {
		res.CheckOutAt = *s.CheckOutAt
	}
	if s.DurationMinutes != nil {
		res.DurationMinutes = *s.DurationMinutes
	}
	if s.Distance != nil {
		res.Distance = *s.Distance
	}
}

/* ===============================
   Recovery & accessors
=================================*/

// Recover adopts the user's open session from the server, or settles in CHECKED_OUT.
func (t *Tracker) Recover(ctx context.Context) (*Session, error) {
	const op = "recover"
	if t.userID == uuid.Nil {
		return nil, newError(KindValidation, op, "sign in first", ErrUnauthenticated)
	}
	if t.checkInFlight.inProgress() || t.checkOutFlight.inProgress() {
		return nil, newError(KindValidation, op, "an operation is in progress", ErrCheckoutInProgress)
	}

	sess, err := runWithTimeout(ctx, t.cfg.OperationTimeout, func(ctx context.Context) (*Session, error) {
		return t.gw.GetOpenSession(ctx, t.userID)
	})
	if err != nil {
		return nil, classify(op, err)
	}

	t.mu.Lock()
	if sess == nil {
		old := t.sampler
		t.resetLocked()
		t.mu.Unlock()
		if old != nil {
			old.Stop()
		}
		return nil, nil
	}
	if t.state == StateCheckedIn && t.sessionID == sess.ID {
		t.mu.Unlock()
		return sess, nil
	}
	old := t.sampler
	t.state = StateCheckedIn
	t.sessionID = sess.ID
	t.checkInAt = sess.CheckInAt
	s := newSampler(t.gw, t.geo, t.cfg, t.userID, sess.ID, sess.CheckInAt)
	if t.suppressUntil.After(t.cfg.Now()) {
		s.SuppressUntil(t.suppressUntil)
	}
	t.sampler = s
	t.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	s.start()
	log.Printf("[TRACKER] 🔁 resumed open session %s (checked in %s)", sess.ID, sess.CheckInAt.Format(time.RFC3339))
	return sess, nil
}

func (t *Tracker) openSession() (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateCheckedIn || t.sessionID == uuid.Nil {
		return uuid.Nil, false
	}
	return t.sessionID, true
}

// settle moves to CHECKED_OUT if sessionID is still the open one, stopping its sampler.
func (t *Tracker) settle(sessionID uuid.UUID) {
	t.mu.Lock()
	if t.sessionID != sessionID {
		t.mu.Unlock()
		return
	}
	s := t.sampler
	t.resetLocked()
	t.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (t *Tracker) resetLocked() {
	t.state = StateCheckedOut
	t.sessionID = uuid.Nil
	t.checkInAt = time.Time{}
	t.sampler = nil
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SessionID is uuid.Nil while checked out.
func (t *Tracker) SessionID() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *Tracker) IsCheckoutInProgress() bool {
	return t.checkOutFlight.inProgress()
}

// SuppressAutoSampleUntil pauses automatic sampling until ts, including for a
// session opened later.
func (t *Tracker) SuppressAutoSampleUntil(ts time.Time) {
	t.mu.Lock()
	t.suppressUntil = ts
	s := t.sampler
	t.mu.Unlock()
	if s != nil {
		s.SuppressUntil(ts)
	}
}

// Nudge asks the sampler for an immediate due-check.
func (t *Tracker) Nudge() {
	t.mu.Lock()
	s := t.sampler
	t.mu.Unlock()
	if s != nil {
		s.Nudge()
	}
}

func (t *Tracker) SampleNow(ctx context.Context) (*LocationSample, error) {
	t.mu.Lock()
	s := t.sampler
	t.mu.Unlock()
	if s == nil {
		return nil, newError(KindValidation, "sample", "no open session", ErrNotCheckedIn)
	}
	return s.SampleNow(ctx)
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Status{State: t.state, CheckoutInProgress: t.checkOutFlight.inProgress()}
	if t.state == StateCheckedIn {
		id, at := t.sessionID, t.checkInAt
		st.SessionID = &id
		st.CheckInAt = &at
	}
	if t.sampler != nil {
		stats := t.sampler.Stats()
		st.Sampler = &stats
	}
	return st
}

// Close stops sampling. The server-side session stays open.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	s := t.sampler
	t.sampler = nil
	t.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}
