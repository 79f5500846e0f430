package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

type SamplerStats struct {
	Attempts         int       `json:"attempts"`
	Recorded         int       `json:"recorded"`
	Duplicates       int       `json:"duplicates"`
	GeoFailures      int       `json:"geo_failures"`
	PersistFailures  int       `json:"persist_failures"`
	PermissionDenied bool      `json:"permission_denied"`
	SessionClosed    bool      `json:"session_closed"`
	LastSampleAt     time.Time `json:"last_sample_at"`
}

// Sampler records the device location against one open session. A single ticker
// drives tick(); Nudge forces an immediate tick through the same loop.
type Sampler struct {
	gw        Gateway
	geo       Geolocator
	cfg       Config
	userID    uuid.UUID
	sessionID uuid.UUID

	group singleflight.Group
	nudge chan struct{}

	mu            sync.Mutex
	lastSample    time.Time
	lastFailure   time.Time
	suppressUntil time.Time
	denied        bool
	ended         bool // session closed or removed on the server
	stopped       bool
	stats         SamplerStats

	cancel context.CancelFunc
	done   chan struct{}
}

// newSampler: baseline is the last known sample time (the check-in time when none was taken).
func newSampler(gw Gateway, geo Geolocator, cfg Config, userID, sessionID uuid.UUID, baseline time.Time) *Sampler {
	return &Sampler{
		gw:         gw,
		geo:        geo,
		cfg:        cfg,
		userID:     userID,
		sessionID:  sessionID,
		nudge:      make(chan struct{}, 1),
		lastSample: baseline,
		done:       make(chan struct{}),
	}
}

func (s *Sampler) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(ctx)
}

func (s *Sampler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.nudge:
		}
		s.tick(ctx)
	}
}

// Nudge requests an immediate due-check (app resumed, screen woke up).
func (s *Sampler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Stop halts the loop and waits for it. Safe to call more than once.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sampler) SessionID() uuid.UUID { return s.sessionID }

func (s *Sampler) Stats() SamplerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sampler) SuppressUntil(t time.Time) {
	s.mu.Lock()
	s.suppressUntil = t
	s.mu.Unlock()
}

// recordInitial counts a location captured at check-in as the first sample.
func (s *Sampler) recordInitial(at time.Time, grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSample = at
	s.suppressUntil = at.Add(grace)
	s.stats.Recorded++
	s.stats.LastSampleAt = at
}

func (s *Sampler) due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped, s.ended, s.denied:
		return false
	case now.Before(s.suppressUntil):
		return false
	case now.Sub(s.lastSample) < s.cfg.SampleInterval:
		return false
	case !s.lastFailure.IsZero() && now.Sub(s.lastFailure) < s.cfg.SampleInterval:
		return false
	}
	return true
}

func (s *Sampler) tick(ctx context.Context) {
	if !s.due(s.cfg.Now()) {
		return
	}
	if _, err := s.acquire(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[SAMPLER] sample skipped for session %s: %v", s.sessionID, err)
	}
}

// SampleNow captures immediately, ignoring the interval but not the grace window
// or a permission denial.
func (s *Sampler) SampleNow(ctx context.Context) (*LocationSample, error) {
	s.mu.Lock()
	stopped, denied, suppressed := s.stopped || s.ended, s.denied, s.cfg.Now().Before(s.suppressUntil)
	s.mu.Unlock()

	switch {
	case stopped:
		return nil, newError(KindValidation, "sample", "no active session", ErrSamplerStopped)
	case denied:
		return nil, newError(KindGeolocation, "sample", "location permission denied for this session", ErrPermissionDenied)
	case suppressed:
		return nil, newError(KindValidation, "sample", "a location was just recorded", ErrSuppressed)
	}
	return s.acquire(ctx)
}

func (s *Sampler) acquire(ctx context.Context) (*LocationSample, error) {
	ch := s.group.DoChan("sample", func() (interface{}, error) {
		return s.capture(ctx)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*LocationSample), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Sampler) capture(ctx context.Context) (*LocationSample, error) {
	s.mu.Lock()
	s.stats.Attempts++
	s.mu.Unlock()

	pos, err := s.readPosition(ctx)
	if err != nil {
		if isPermissionDenied(err) {
			s.mu.Lock()
			s.denied = true
			s.stats.PermissionDenied = true
			s.mu.Unlock()
			log.Printf("[SAMPLER] 🚫 location permission denied, auto-sampling stopped for session %s", s.sessionID)
			return nil, newError(KindGeolocation, "sample", "location permission denied", err)
		}
		s.fail(func(st *SamplerStats) { st.GeoFailures++ })
		return nil, newError(KindGeolocation, "sample", "location unavailable", err)
	}

	sample := LocationSample{
		UserID:     s.userID,
		SessionID:  s.sessionID,
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Accuracy:   pos.Accuracy,
		CapturedAt: s.cfg.Now().UTC(),
	}

	stored, dup, err := s.persist(ctx, sample)
	if sessionGone(err) {
		s.mu.Lock()
		s.ended = true
		s.stats.SessionClosed = true
		s.mu.Unlock()
		log.Printf("[SAMPLER] 🛑 session %s is no longer open on the server, sampling stopped", s.sessionID)
		return nil, newError(KindBackend, "sample", "session was closed elsewhere; sampling stopped", err)
	}
	if err != nil {
		s.fail(func(st *SamplerStats) { st.PersistFailures++ })
		return nil, classify("sample", err)
	}
	if stored == nil {
		stored = &sample
	}

	s.mu.Lock()
	s.lastSample = sample.CapturedAt
	s.lastFailure = time.Time{}
	if dup {
		s.stats.Duplicates++
	} else {
		s.stats.Recorded++
	}
	s.stats.LastSampleAt = sample.CapturedAt
	s.mu.Unlock()
	return stored, nil
}

func (s *Sampler) fail(count func(*SamplerStats)) {
	s.mu.Lock()
	s.lastFailure = s.cfg.Now()
	count(&s.stats)
	s.mu.Unlock()
}

// readPosition retries once after RetryDelay unless permission was denied.
func (s *Sampler) readPosition(ctx context.Context) (Position, error) {
	pos, err := s.readOnce(ctx)
	if err == nil || isPermissionDenied(err) || ctx.Err() != nil {
		return pos, err
	}
	log.Printf("[SAMPLER] ⚠️ location read failed (%v), retrying in %s", err, s.cfg.RetryDelay)
	if err := sleepCtx(ctx, s.cfg.RetryDelay); err != nil {
		return Position{}, err
	}
	return s.readOnce(ctx)
}

func (s *Sampler) readOnce(ctx context.Context) (Position, error) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GeoTimeout)
	defer cancel()

	pos, err := s.geo.CurrentPosition(gctx, PositionOptions{
		EnableHighAccuracy: true,
		MaximumAge:         0,
		Timeout:            s.cfg.GeoTimeout,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Position{}, &GeoError{Code: GeoTimeout, Message: "location read timed out"}
		}
		return Position{}, err
	}
	if !pos.Valid() {
		return Position{}, &GeoError{Code: GeoPositionUnavailable, Message: "position out of range"}
	}
	return pos, nil
}

// sessionGone reports a write rejected because the session was checked out
// (or deleted) by another device. Retrying cannot succeed.
func sessionGone(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
}

// persist retries once after RetryDelay.
func (s *Sampler) persist(ctx context.Context, sample LocationSample) (*LocationSample, bool, error) {
	stored, dup, err := s.insertOnce(ctx, sample)
	if err == nil || sessionGone(err) || ctx.Err() != nil {
		return stored, dup, err
	}
	log.Printf("[SAMPLER] ⚠️ saving sample failed (%v), retrying in %s", err, s.cfg.RetryDelay)
	if err := sleepCtx(ctx, s.cfg.RetryDelay); err != nil {
		return nil, false, err
	}
	stored, dup, err = s.insertOnce(ctx, sample)
	if err != nil {
		log.Printf("[SAMPLER] ❌ saving sample failed again, waiting for next cycle: %v", err)
	}
	return stored, dup, err
}

func (s *Sampler) insertOnce(ctx context.Context, sample LocationSample) (*LocationSample, bool, error) {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()
	return s.gw.InsertLocationSample(wctx, sample)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
