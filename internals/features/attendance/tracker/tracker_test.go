package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var morning = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type env struct {
	t     *testing.T
	clock *fakeClock
	gw    *memGateway
	tr    *Tracker
	user  uuid.UUID
}

func testConfig(clock *fakeClock) Config {
	return Config{
		SampleInterval:   2 * time.Minute,
		TickInterval:     time.Hour, // ticks are driven by the tests
		RetryDelay:       time.Millisecond,
		OperationTimeout: 2 * time.Second,
		WatchdogTimeout:  4 * time.Second,
		InitialGrace:     30 * time.Second,
		GeoTimeout:       time.Second,
		Location:         time.UTC,
		Now:              clock.Now,
	}
}

func newEnv(t *testing.T, geo Geolocator, tweak ...func(*Config)) *env {
	t.Helper()
	clock := newFakeClock(morning)
	cfg := testConfig(clock)
	for _, f := range tweak {
		f(&cfg)
	}
	gw := newMemGateway()
	user := uuid.New()
	tr := New(gw, geo, user, cfg)
	t.Cleanup(tr.Close)
	return &env{t: t, clock: clock, gw: gw, tr: tr, user: user}
}

func (e *env) sampler() *Sampler {
	e.tr.mu.Lock()
	defer e.tr.mu.Unlock()
	require.NotNil(e.t, e.tr.sampler, "expected an active sampler")
	return e.tr.sampler
}

func (e *env) tick() {
	e.sampler().tick(context.Background())
}

func (e *env) checkIn(odometer float64) *CheckInResult {
	res, err := e.tr.CheckIn(context.Background(), CheckInRequest{Odometer: odometer})
	require.NoError(e.t, err)
	return res
}

func here() *scriptedGeo {
	return &scriptedGeo{pos: Position{Latitude: -6.2, Longitude: 106.8}}
}

func TestScenario_CheckInSampleCheckOut(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()

	in := e.checkIn(1000)
	assert.Equal(t, StateCheckedIn, e.tr.State())
	assert.Equal(t, in.SessionID, e.tr.SessionID())
	assert.True(t, e.gw.active[e.user])

	e.clock.Advance(time.Minute)
	e.tick()
	assert.Equal(t, 0, e.gw.sampleCount(), "not due before the interval")

	e.clock.Advance(time.Minute)
	e.tick()
	assert.Equal(t, 1, e.gw.sampleCount())

	e.clock.Advance(63 * time.Minute)
	out, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 1025})
	require.NoError(t, err)

	assert.Equal(t, 65, out.DurationMinutes)
	assert.Equal(t, 25.0, out.Distance)
	assert.False(t, out.DistanceClamped)
	require.NotNil(t, out.Summary)
	assert.Equal(t, 25.0, out.Summary.TotalDistance)
	assert.Equal(t, 65, out.Summary.TotalMinutes)
	assert.Equal(t, 1, out.Summary.CheckInCount)

	stored := e.gw.summaries[e.user.String()+"|2026-03-02"]
	assert.Equal(t, 25.0, stored.TotalDistance)
	assert.Equal(t, 1, stored.CheckInCount)

	assert.Equal(t, StateCheckedOut, e.tr.State())
	assert.Equal(t, uuid.Nil, e.tr.SessionID())
	assert.False(t, e.gw.active[e.user])
}

func TestCheckOut_DistanceAndDuration(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()

	for _, tc := range []struct{ in, out, want float64 }{
		{0, 0, 0},
		{1000, 1025, 25},
		{5.5, 105.5, 100},
	} {
		e.checkIn(tc.in)
		res, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: tc.out})
		require.NoError(t, err)
		assert.Equal(t, tc.want, res.Distance)
		assert.GreaterOrEqual(t, res.DurationMinutes, 1)
	}

	e.checkIn(1000)
	res, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 990})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Distance, "odometer decrease is clamped")
	assert.True(t, res.DistanceClamped)
	assert.NotEmpty(t, res.Warnings)
}

func TestCheckOut_WithoutOpenSessionNeverCallsBackend(t *testing.T) {
	e := newEnv(t, here())

	_, err := e.tr.CheckOut(context.Background(), CheckOutRequest{Odometer: 10})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.True(t, errors.Is(err, ErrNotCheckedIn))
	assert.Equal(t, 0, e.gw.total())
}

func TestCheckIn_Validation(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()

	_, err := e.tr.CheckIn(ctx, CheckInRequest{Odometer: -1})
	assert.True(t, errors.Is(err, ErrInvalidOdometer))

	_, err = e.tr.CheckIn(ctx, CheckInRequest{Odometer: 1, Location: &Position{Latitude: 91}})
	assert.True(t, errors.Is(err, ErrInvalidLocation))
	assert.Equal(t, 0, e.gw.total())

	anon := New(e.gw, here(), uuid.Nil, testConfig(e.clock))
	_, err = anon.CheckIn(ctx, CheckInRequest{Odometer: 1})
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	e.checkIn(1)
	_, err = e.tr.CheckIn(ctx, CheckInRequest{Odometer: 2})
	assert.True(t, errors.Is(err, ErrAlreadyCheckedIn))
	assert.Equal(t, 1, e.gw.count("CreateSession"))
}

func TestCheckIn_RollsBackWhenMarkActiveFails(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()

	e.gw.mu.Lock()
	e.gw.setActiveErr = errors.New("connection reset")
	e.gw.mu.Unlock()

	_, err := e.tr.CheckIn(ctx, CheckInRequest{Odometer: 1000})
	require.Error(t, err)
	assert.Equal(t, KindBackend, KindOf(err))
	assert.Equal(t, 1, e.gw.count("CreateSession"))
	assert.Equal(t, 1, e.gw.count("DeleteSession"))
	assert.Empty(t, e.gw.sessions)
	assert.Equal(t, StateCheckedOut, e.tr.State())

	e.gw.mu.Lock()
	e.gw.setActiveErr = nil
	e.gw.mu.Unlock()
	e.checkIn(1000)
	assert.Equal(t, StateCheckedIn, e.tr.State())
}

func TestCheckIn_CreateTimeoutReleasesFlagAndAllowsRetry(t *testing.T) {
	e := newEnv(t, here(), func(c *Config) {
		c.OperationTimeout = 50 * time.Millisecond
		c.WatchdogTimeout = 500 * time.Millisecond
	})
	ctx := context.Background()

	e.gw.mu.Lock()
	e.gw.hangCreate = true
	e.gw.mu.Unlock()

	_, err := e.tr.CheckIn(ctx, CheckInRequest{Odometer: 1000})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "may have succeeded")
	assert.Equal(t, StateCheckedOut, e.tr.State())
	assert.False(t, e.tr.checkInFlight.inProgress())
	assert.Equal(t, 0, e.gw.count("SetUserActive"))

	e.gw.mu.Lock()
	e.gw.hangCreate = false
	e.gw.mu.Unlock()

	e.checkIn(1000)
	assert.Equal(t, StateCheckedIn, e.tr.State())
	assert.Equal(t, 2, e.gw.count("CreateSession"))
}

func TestCheckIn_MarkActiveTimeoutRollsBack(t *testing.T) {
	e := newEnv(t, here(), func(c *Config) {
		c.OperationTimeout = 50 * time.Millisecond
		c.WatchdogTimeout = 500 * time.Millisecond
	})
	ctx := context.Background()

	e.gw.mu.Lock()
	e.gw.hangSetActive = true
	e.gw.mu.Unlock()

	_, err := e.tr.CheckIn(ctx, CheckInRequest{Odometer: 1000})
	require.Error(t, err)
	assert.Equal(t, KindBackend, KindOf(err))
	assert.Contains(t, err.Error(), "check-in was rolled back")
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimedOut), err.Error())
	assert.Equal(t, 1, e.gw.count("DeleteSession"))
	e.gw.mu.Lock()
	assert.Empty(t, e.gw.sessions)
	e.gw.mu.Unlock()
	assert.Equal(t, StateCheckedOut, e.tr.State())
	assert.False(t, e.tr.checkInFlight.inProgress())

	e.gw.mu.Lock()
	e.gw.hangSetActive = false
	e.gw.mu.Unlock()

	e.checkIn(1000)
	assert.Equal(t, StateCheckedIn, e.tr.State())
}

func TestCheckOut_ConcurrentCallIsRejected(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()
	e.checkIn(1000)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	e.gw.mu.Lock()
	e.gw.updateEntered, e.gw.updateRelease = entered, release
	e.gw.mu.Unlock()

	type outcome struct {
		res *CheckOutResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 1010})
		first <- outcome{res, err}
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first checkout never reached the backend")
	}
	assert.True(t, e.tr.IsCheckoutInProgress())

	_, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 1010})
	assert.True(t, errors.Is(err, ErrCheckoutInProgress))

	close(release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, 10.0, got.res.Distance)

	assert.Equal(t, 1, e.gw.count("UpdateSession"))
	assert.Equal(t, 1, e.gw.count("UpsertDailySummary"))
	assert.False(t, e.tr.IsCheckoutInProgress())

	_, err = e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 1010})
	assert.True(t, errors.Is(err, ErrNotCheckedIn))
	assert.Equal(t, 1, e.gw.count("UpdateSession"))
}

func TestCheckOut_TimeoutReleasesFlagAndAllowsRetry(t *testing.T) {
	e := newEnv(t, here(), func(c *Config) {
		c.OperationTimeout = 50 * time.Millisecond
		c.WatchdogTimeout = 500 * time.Millisecond
	})
	ctx := context.Background()
	e.checkIn(1000)

	e.gw.mu.Lock()
	e.gw.updateRelease = make(chan struct{}) // never released
	e.gw.mu.Unlock()

	_, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 1020})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "may have succeeded")
	assert.False(t, e.tr.IsCheckoutInProgress())
	assert.Equal(t, StateCheckedIn, e.tr.State())

	e.gw.mu.Lock()
	e.gw.updateRelease = nil
	e.gw.mu.Unlock()

	res, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 1020})
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.Distance)
	assert.Equal(t, StateCheckedOut, e.tr.State())
}

func TestCheckOut_ReconcilesSessionClosedByEarlierAttempt(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()
	in := e.checkIn(1000)

	closedAt := morning.Add(10 * time.Minute)
	odo, mins, dist := 1007.0, 10, 7.0
	e.gw.mu.Lock()
	s := e.gw.sessions[in.SessionID]
	s.CheckOutAt, s.CheckOutOdometer, s.DurationMinutes, s.Distance = &closedAt, &odo, &mins, &dist
	e.gw.mu.Unlock()

	e.clock.Advance(12 * time.Minute)
	res, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 1009})
	require.NoError(t, err)
	assert.True(t, res.Reconciled)
	assert.Equal(t, 10, res.DurationMinutes)
	assert.Equal(t, 7.0, res.Distance)
	assert.Equal(t, 0, e.gw.count("UpdateSession"))
	assert.Equal(t, 1, e.gw.count("UpsertDailySummary"))
	assert.Equal(t, StateCheckedOut, e.tr.State())
}

func TestCheckOut_FallsBackWhenCheckInUnavailable(t *testing.T) {
	e := newEnv(t, here())
	e.checkIn(1000)

	e.gw.mu.Lock()
	e.gw.getSessionErr = errors.New("read replica down")
	e.gw.mu.Unlock()

	res, err := e.tr.CheckOut(context.Background(), CheckOutRequest{Odometer: 1100})
	require.NoError(t, err)
	assert.Equal(t, 60, res.DurationMinutes)
	assert.Equal(t, 5.0, res.Distance)
	assert.True(t, res.DefaultDuration)
	assert.True(t, res.DefaultDistance)
}

func TestSampler_PermissionDeniedStopsSampling(t *testing.T) {
	geo := &deniedGeo{}
	e := newEnv(t, geo)
	e.checkIn(500)

	for i := 0; i < 3; i++ {
		e.clock.Advance(2 * time.Minute)
		e.tick()
	}
	assert.Equal(t, 1, geo.Calls(), "no retries after a denial")
	assert.Equal(t, 0, e.gw.sampleCount())
	assert.True(t, e.sampler().Stats().PermissionDenied)

	_, err := e.tr.SampleNow(context.Background())
	assert.Equal(t, KindGeolocation, KindOf(err))

	res, err := e.tr.CheckOut(context.Background(), CheckOutRequest{Odometer: 510})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Distance)
	assert.Equal(t, 0, e.gw.sampleCount())
}

func TestSampler_TransientGeoErrorRetriesOnceThenWaits(t *testing.T) {
	unavailable := &GeoError{Code: GeoPositionUnavailable, Message: "no fix"}
	geo := here()
	geo.errs = []error{unavailable, unavailable}
	e := newEnv(t, geo)
	e.checkIn(0)

	e.clock.Advance(2 * time.Minute)
	e.tick()
	assert.Equal(t, 2, geo.Calls(), "one retry")
	assert.Equal(t, 0, e.gw.sampleCount())
	assert.Equal(t, 1, e.sampler().Stats().GeoFailures)

	e.clock.Advance(time.Minute)
	e.tick()
	assert.Equal(t, 2, geo.Calls(), "waits for the next cycle")

	e.clock.Advance(time.Minute)
	e.tick()
	assert.Equal(t, 3, geo.Calls())
	assert.Equal(t, 1, e.gw.sampleCount())
}

func TestSampler_TimeoutRecoversOnRetry(t *testing.T) {
	geo := here()
	geo.errs = []error{&GeoError{Code: GeoTimeout, Message: "timeout"}}
	e := newEnv(t, geo)
	e.checkIn(0)

	e.clock.Advance(2 * time.Minute)
	e.tick()
	assert.Equal(t, 2, geo.Calls())
	assert.Equal(t, 1, e.gw.sampleCount())
}

func TestSampler_PersistFailureRetriesOnce(t *testing.T) {
	e := newEnv(t, here())
	e.checkIn(0)

	e.gw.mu.Lock()
	e.gw.insertErrs = []error{errors.New("503"), nil}
	e.gw.mu.Unlock()
	e.clock.Advance(2 * time.Minute)
	e.tick()
	assert.Equal(t, 1, e.gw.sampleCount())
	assert.Equal(t, 2, e.gw.count("InsertLocationSample"))

	e.gw.mu.Lock()
	e.gw.insertErrs = []error{errors.New("503"), errors.New("503")}
	e.gw.mu.Unlock()
	e.clock.Advance(2 * time.Minute)
	e.tick()
	assert.Equal(t, 1, e.gw.sampleCount())
	assert.Equal(t, 4, e.gw.count("InsertLocationSample"))
	assert.Equal(t, 1, e.sampler().Stats().PersistFailures)
}

func TestSampler_SessionClosedElsewhereStopsSampling(t *testing.T) {
	geo := here()
	e := newEnv(t, geo)
	e.checkIn(0)

	e.gw.mu.Lock()
	e.gw.insertErrs = []error{ErrConflict}
	e.gw.mu.Unlock()
	e.clock.Advance(2 * time.Minute)
	e.tick()
	assert.Equal(t, 1, e.gw.count("InsertLocationSample"), "conflict is not retried")
	assert.Equal(t, 1, geo.Calls())

	stats := e.sampler().Stats()
	assert.True(t, stats.SessionClosed)
	assert.Equal(t, 0, stats.PersistFailures)

	for i := 0; i < 3; i++ {
		e.clock.Advance(5 * time.Minute)
		e.tick()
	}
	assert.Equal(t, 1, geo.Calls())
	assert.Equal(t, 1, e.gw.count("InsertLocationSample"))

	_, err := e.tr.SampleNow(context.Background())
	assert.True(t, errors.Is(err, ErrSamplerStopped))
	assert.Equal(t, 1, geo.Calls())
}

func TestSampler_CheckInLocationCountsAsFirstSample(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()

	res, err := e.tr.CheckIn(ctx, CheckInRequest{
		Odometer: 10,
		Location: &Position{Latitude: -6.2, Longitude: 106.8},
	})
	require.NoError(t, err)
	assert.True(t, res.LocationRecorded)
	assert.Equal(t, 1, e.gw.sampleCount())

	e.clock.Advance(20 * time.Second)
	_, err = e.tr.SampleNow(ctx)
	assert.True(t, errors.Is(err, ErrSuppressed))

	e.clock.Advance(time.Minute)
	e.tick()
	assert.Equal(t, 1, e.gw.sampleCount(), "interval counts from the check-in location")

	e.clock.Advance(time.Minute)
	e.tick()
	assert.Equal(t, 2, e.gw.sampleCount())
}

func TestSampler_DuplicateSamplesCollapse(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()
	e.checkIn(0)

	first, err := e.tr.SampleNow(ctx)
	require.NoError(t, err)

	e.clock.Advance(3 * time.Second)
	second, err := e.tr.SampleNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, e.gw.sampleCount())
	assert.Equal(t, 1, e.sampler().Stats().Duplicates)
}

type gatedGeo struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (g *gatedGeo) CurrentPosition(ctx context.Context, _ PositionOptions) (Position, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return Position{}, ctx.Err()
	}
	return Position{Latitude: 1, Longitude: 1}, nil
}

func TestSampler_ConcurrentTriggersShareOneAcquisition(t *testing.T) {
	geo := &gatedGeo{entered: make(chan struct{}, 1), release: make(chan struct{})}
	e := newEnv(t, geo)
	e.checkIn(0)
	e.clock.Advance(2 * time.Minute)

	var wg sync.WaitGroup
	results := make([]*LocationSample, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = e.tr.SampleNow(context.Background())
		}(i)
	}

	<-geo.entered
	time.Sleep(50 * time.Millisecond)
	close(geo.release)
	wg.Wait()

	geo.mu.Lock()
	calls := geo.calls
	geo.mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, e.gw.sampleCount())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].ID, r.ID)
	}
}

func TestCheckOut_StopsSampler(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()
	e.checkIn(0)
	s := e.sampler()

	_, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 1})
	require.NoError(t, err)

	e.clock.Advance(10 * time.Minute)
	assert.False(t, s.due(e.clock.Now()))
	_, err = s.SampleNow(ctx)
	assert.True(t, errors.Is(err, ErrSamplerStopped))
	_, err = e.tr.SampleNow(ctx)
	assert.True(t, errors.Is(err, ErrNotCheckedIn))
	assert.Nil(t, e.tr.Status().Sampler)
}

func TestRecover(t *testing.T) {
	e := newEnv(t, here())
	ctx := context.Background()

	sess, err := e.tr.Recover(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, StateCheckedOut, e.tr.State())

	id, err := e.gw.CreateSession(ctx, NewSession{UserID: e.user, CheckInAt: morning.Add(-time.Hour), Odometer: 900})
	require.NoError(t, err)

	sess, err = e.tr.Recover(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, id, e.tr.SessionID())
	assert.Equal(t, StateCheckedIn, e.tr.State())

	e.tick()
	assert.Equal(t, 1, e.gw.sampleCount(), "overdue sample is taken right away")

	res, err := e.tr.CheckOut(ctx, CheckOutRequest{Odometer: 950})
	require.NoError(t, err)
	assert.Equal(t, 60, res.DurationMinutes)
	assert.Equal(t, 50.0, res.Distance)
}

func TestCheckOut_UnknownSessionResets(t *testing.T) {
	e := newEnv(t, here())
	in := e.checkIn(0)

	e.gw.mu.Lock()
	delete(e.gw.sessions, in.SessionID)
	e.gw.mu.Unlock()

	_, err := e.tr.CheckOut(context.Background(), CheckOutRequest{Odometer: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, StateCheckedOut, e.tr.State())
}

func TestFlight_WatchdogClearsStuckFlag(t *testing.T) {
	f := newFlight("checkout", 20*time.Millisecond)
	tok, ok := f.acquire()
	require.True(t, ok)

	_, ok = f.acquire()
	assert.False(t, ok)

	assert.Eventually(t, func() bool { return !f.inProgress() }, time.Second, 5*time.Millisecond)
	assert.False(t, f.release(tok), "stale token cannot clear a newer flight")

	tok2, ok := f.acquire()
	require.True(t, ok)
	assert.True(t, f.release(tok2))
}

func TestRunWithTimeout(t *testing.T) {
	_, err := runWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return 0, ctx.Err()
	})
	assert.True(t, errors.Is(err, ErrTimedOut))

	v, err := runWithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
