package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldforce_backend/internals/features/attendance/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memGateway keeps everything in maps and counts calls.
type memGateway struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*Session
	samples   []LocationSample
	active    map[uuid.UUID]bool
	summaries map[string]metrics.DailySummary

	calls map[string]int

	setActiveErr  error
	hangCreate    bool // CreateSession blocks until ctx is done, before writing
	hangSetActive bool // SetUserActive blocks until ctx is done
	getSessionErr error
	insertErrs    []error       // consumed one per InsertLocationSample call
	updateEntered chan struct{} // signalled when UpdateSession starts
	updateRelease chan struct{} // UpdateSession waits on this (or ctx) when set
}

func newMemGateway() *memGateway {
	return &memGateway{
		sessions:  map[uuid.UUID]*Session{},
		active:    map[uuid.UUID]bool{},
		summaries: map[string]metrics.DailySummary{},
		calls:     map[string]int{},
	}
}

func (g *memGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *memGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *memGateway) sampleCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.samples)
}

func (g *memGateway) hit(name string) {
	g.mu.Lock()
	g.calls[name]++
	g.mu.Unlock()
}

func (g *memGateway) hangs(flag *bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *flag
}

func (g *memGateway) CreateSession(ctx context.Context, in NewSession) (uuid.UUID, error) {
	g.hit("CreateSession")
	if g.hangs(&g.hangCreate) {
		<-ctx.Done()
		return uuid.Nil, ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.sessions {
		if s.UserID == in.UserID && s.IsOpen() {
			return uuid.Nil, ErrConflict
		}
	}
	id := uuid.New()
	g.sessions[id] = &Session{
		ID:              id,
		UserID:          in.UserID,
		CheckInAt:       in.CheckInAt,
		CheckInOdometer: in.Odometer,
		CheckInPhotoURL: in.PhotoURL,
	}
	return id, nil
}

func (g *memGateway) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	g.hit("GetSession")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getSessionErr != nil {
		return nil, g.getSessionErr
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (g *memGateway) UpdateSession(ctx context.Context, id uuid.UUID, f SessionUpdate) error {
	g.hit("UpdateSession")
	g.mu.Lock()
	entered, release := g.updateEntered, g.updateRelease
	g.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if !s.IsOpen() {
		return ErrConflict
	}
	s.CheckOutAt = f.CheckOutAt
	s.CheckOutOdometer = f.CheckOutOdometer
	s.CheckOutPhotoURL = f.CheckOutPhotoURL
	s.DurationMinutes = f.DurationMinutes
	s.Distance = f.Distance
	return nil
}

func (g *memGateway) DeleteSession(ctx context.Context, id uuid.UUID) error {
	g.hit("DeleteSession")
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(g.sessions, id)
	return nil
}

func (g *memGateway) InsertLocationSample(ctx context.Context, s LocationSample) (*LocationSample, bool, error) {
	g.hit("InsertLocationSample")
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.insertErrs) > 0 {
		err := g.insertErrs[0]
		g.insertErrs = g.insertErrs[1:]
		if err != nil {
			return nil, false, err
		}
	}
	for i := range g.samples {
		e := g.samples[i]
		if e.UserID == s.UserID && e.SessionID == s.SessionID && metrics.IsDuplicateSample(
			metrics.Point{Latitude: e.Latitude, Longitude: e.Longitude, CapturedAt: e.CapturedAt},
			metrics.Point{Latitude: s.Latitude, Longitude: s.Longitude, CapturedAt: s.CapturedAt},
		) {
			cp := e
			return &cp, true, nil
		}
	}
	s.ID = uuid.New()
	g.samples = append(g.samples, s)
	return &s, false, nil
}

func (g *memGateway) SetUserActive(ctx context.Context, userID uuid.UUID, active bool) error {
	g.hit("SetUserActive")
	if g.hangs(&g.hangSetActive) {
		<-ctx.Done()
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.setActiveErr != nil {
		return g.setActiveErr
	}
	g.active[userID] = active
	return nil
}

func (g *memGateway) ListSessionsForDay(ctx context.Context, userID uuid.UUID, day time.Time) ([]Session, error) {
	g.hit("ListSessionsForDay")
	g.mu.Lock()
	defer g.mu.Unlock()
	end := day.AddDate(0, 0, 1)
	in := func(t time.Time) bool { return !t.Before(day) && t.Before(end) }

	var out []Session
	for _, s := range g.sessions {
		if s.UserID != userID {
			continue
		}
		if in(s.CheckInAt) || (s.CheckOutAt != nil && in(*s.CheckOutAt)) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (g *memGateway) UpsertDailySummary(ctx context.Context, s metrics.DailySummary) error {
	g.hit("UpsertDailySummary")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.summaries[s.UserID.String()+"|"+s.Date.Format("2006-01-02")] = s
	return nil
}

func (g *memGateway) GetOpenSession(ctx context.Context, userID uuid.UUID) (*Session, error) {
	g.hit("GetOpenSession")
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.sessions {
		if s.UserID == userID && s.IsOpen() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// scriptedGeo replays errs in order, then returns pos.
type scriptedGeo struct {
	mu    sync.Mutex
	pos   Position
	errs  []error
	calls int
}

func (g *scriptedGeo) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return Position{}, err
		}
	}
	return g.pos, nil
}

func (g *scriptedGeo) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type deniedGeo struct {
	mu    sync.Mutex
	calls int
}

func (g *deniedGeo) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return Position{}, &GeoError{Code: GeoPermissionDenied, Message: "user denied geolocation"}
}

func (g *deniedGeo) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
