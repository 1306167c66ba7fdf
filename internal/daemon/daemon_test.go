package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/radio-scheduler/internal/clock"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
	"github.com/MrSnakeDoc/radio-scheduler/internal/schedule"
	"github.com/MrSnakeDoc/radio-scheduler/internal/store/state"
)

// ---- fakes ----

type fakePlayer struct {
	mu        sync.Mutex
	reachable bool
	playing   bool
	url       string
	volume    int
	playErr   error

	statuses, plays, stops, restarts int
}

func newFakePlayer() *fakePlayer { return &fakePlayer{reachable: true, volume: 40} }

func (f *fakePlayer) Status(context.Context) (domain.PlayerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	if !f.reachable {
		return domain.UnreachableState(), domain.Unreachable(errors.New("connection refused"))
	}
	return domain.PlayerState{
		Playing:          f.playing,
		CurrentURL:       f.url,
		BackendReachable: true,
		Volume:           f.volume,
	}, nil
}

func (f *fakePlayer) Play(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.reachable {
		return domain.Unreachable(errors.New("connection refused"))
	}
	if f.playErr != nil {
		return f.playErr
	}
	f.plays++
	f.playing, f.url = true, url
	return nil
}

func (f *fakePlayer) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.reachable {
		return domain.Unreachable(errors.New("connection refused"))
	}
	f.stops++
	f.playing = false
	return nil
}

func (f *fakePlayer) SetVolume(_ context.Context, v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.reachable {
		return domain.Unreachable(errors.New("connection refused"))
	}
	f.volume = v
	return nil
}

func (f *fakePlayer) RestartConnection(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	if !f.reachable {
		return domain.Unreachable(errors.New("connection refused"))
	}
	return nil
}

func (f *fakePlayer) setReachable(v bool) {
	f.mu.Lock()
	f.reachable = v
	f.mu.Unlock()
}

func (f *fakePlayer) counts() (plays, stops, restarts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays, f.stops, f.restarts
}

type fakeConfig struct {
	mu  sync.Mutex
	reg *domain.Registry
	err error
	rev uint64
}

func (f *fakeConfig) Load() (*domain.Registry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.reg.Clone(), nil
}

func (f *fakeConfig) Revision() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rev
}

func (f *fakeConfig) set(reg *domain.Registry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reg, f.err = reg, err
	f.rev++
}

// ---- fixtures ----

// monday is 2024-01-01, a Monday.
func at(hh, mm int) time.Time { return time.Date(2024, 1, 1, hh, mm, 0, 0, time.Local) }

func tod(hh, mm int) domain.TimeOfDay { return domain.TimeOfDay(hh*60 + mm) }

func fixture() *domain.Registry {
	return &domain.Registry{
		Stations: []domain.Station{
			{ID: "a", Name: "Station A", URL: "http://a/stream", Default: true},
			{ID: "b", Name: "Station B", URL: "http://b/stream"},
			{ID: "c", Name: "Station C", URL: "http://c/stream"},
			{ID: "news", Name: "News", URL: "http://news/stream"},
		},
		Schedule: []domain.ScheduleEntry{
			{StationID: "b", Days: domain.NewDaySet(time.Monday), Start: tod(8, 0), End: tod(9, 0)},
		},
	}
}

type harness struct {
	d      *Daemon
	player *fakePlayer
	config *fakeConfig
	store  *state.Store
	clock  *clock.Fake
	reg    *prometheus.Registry
}

func newHarness(t *testing.T, reg *domain.Registry, now time.Time) *harness {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newHarnessWithStore(t, reg, now, store)
}

func newHarnessWithStore(t *testing.T, reg *domain.Registry, now time.Time, store *state.Store) *harness {
	t.Helper()
	h := &harness{
		player: newFakePlayer(),
		config: &fakeConfig{},
		store:  store,
		clock:  clock.NewFake(now),
		reg:    prometheus.NewRegistry(),
	}
	h.config.set(reg, nil)

	opts := DefaultOptions()
	opts.BackoffInitial = 2 * time.Second
	opts.BackoffMax = 10 * time.Second
	opts.BackoffJitter = 0
	opts.FailureThreshold = 3

	h.d = New(opts, h.config, h.player, store, h.clock, logger.New("error", false), NewMetrics(h.reg))
	return h
}

// start runs the initialization pass without the loop goroutine.
func (h *harness) start() {
	h.d.startedAt = h.clock.Now()
	h.d.initialize()
	h.d.tick(context.Background())
}

func (h *harness) tickAt(t time.Time) Snapshot {
	h.clock.Set(t)
	h.d.tick(context.Background())
	return h.d.Snapshot()
}

func (h *harness) apply(t *testing.T, cmd Command) (Ack, error) {
	t.Helper()
	return h.d.handle(context.Background(), request{id: "test", cmd: cmd})
}

// ---- tests ----

func TestReconcileIsIdempotent(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.start()

	snap := h.d.Snapshot()
	assert.Equal(t, Steady, snap.State)
	require.NotNil(t, snap.Desired)
	assert.Equal(t, "b", snap.Desired.ID)
	assert.Equal(t, schedule.SourceSchedule, snap.Source)

	for i := 1; i <= 10; i++ {
		h.tickAt(at(8, 30).Add(time.Duration(i) * 5 * time.Second))
	}
	plays, stops, _ := h.player.counts()
	assert.Equal(t, 1, plays, "one play, then nothing while in sync")
	assert.Equal(t, 0, stops)
	assert.Equal(t, float64(11), testutil.ToFloat64(h.d.metrics.ticks))
}

func TestScheduleTransitionSwitchesStation(t *testing.T) {
	h := newHarness(t, fixture(), at(7, 59))
	h.start()
	assert.Equal(t, "http://a/stream", h.player.url)

	h.tickAt(at(8, 0))
	assert.Equal(t, "http://b/stream", h.player.url)

	snap := h.tickAt(at(9, 0))
	assert.Equal(t, "http://a/stream", h.player.url)
	assert.Equal(t, schedule.SourceDefault, snap.Source)

	plays, _, _ := h.player.counts()
	assert.Equal(t, 3, plays)
}

func TestStopsWhenNothingShouldPlay(t *testing.T) {
	reg := fixture()
	reg.Stations[0].Default = false

	h := newHarness(t, reg, at(10, 0))
	h.player.playing, h.player.url = true, "http://leftover/stream"
	h.start()

	snap := h.d.Snapshot()
	assert.Nil(t, snap.Desired)
	assert.Equal(t, schedule.SourceNone, snap.Source)

	h.tickAt(at(10, 1))
	_, stops, _ := h.player.counts()
	assert.Equal(t, 1, stops)
	assert.False(t, h.player.playing)
}

func TestDegradedRecoveryIssuesExactlyOnePlay(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.player.setReachable(false)
	h.start()

	snap := h.d.Snapshot()
	assert.Equal(t, Degraded, snap.State)
	assert.False(t, snap.BackendReachable)
	require.NotNil(t, snap.NextAttempt)
	assert.Equal(t, at(8, 30).Add(2*time.Second), *snap.NextAttempt)
	require.NotNil(t, snap.Desired, "desired station is still computed while degraded")
	assert.Equal(t, "b", snap.Desired.ID)

	// Inside the backoff window the backend is left alone.
	_, _, restarts := h.player.counts()
	h.tickAt(at(8, 30).Add(time.Second))
	_, _, again := h.player.counts()
	assert.Equal(t, restarts, again)

	// Failed attempt doubles the wait.
	snap = h.tickAt(at(8, 30).Add(2 * time.Second))
	require.NotNil(t, snap.NextAttempt)
	assert.Equal(t, at(8, 30).Add(6*time.Second), *snap.NextAttempt)

	h.player.setReachable(true)
	base := at(8, 31)
	snap = h.tickAt(base)
	assert.Equal(t, Steady, snap.State)
	assert.Nil(t, snap.NextAttempt)

	for i := 1; i <= 5; i++ {
		h.tickAt(base.Add(time.Duration(i) * 5 * time.Second))
	}
	plays, _, _ := h.player.counts()
	assert.Equal(t, 1, plays)
	assert.Equal(t, "http://b/stream", h.player.url)
}

func TestBackoffIsCapped(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.player.setReachable(false)
	h.start()

	now := at(8, 30)
	var snap Snapshot
	for i := 0; i < 10; i++ {
		now = now.Add(time.Minute)
		snap = h.tickAt(now)
	}
	require.NotNil(t, snap.NextAttempt)
	assert.Equal(t, now.Add(10*time.Second), *snap.NextAttempt)
}

func TestConfigErrorKeepsLastKnownGood(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.start()

	h.config.set(nil, &domain.ConfigError{Issues: []string{"schedule entry #1: unknown station"}})
	snap := h.tickAt(at(8, 31))

	assert.Equal(t, Steady, snap.State)
	assert.Contains(t, snap.ConfigError, "unknown station")
	assert.Equal(t, 4, snap.Stations)
	require.NotNil(t, snap.Desired)
	assert.Equal(t, "b", snap.Desired.ID)

	// Same revision: not retried every tick.
	snap = h.tickAt(at(8, 32))
	assert.NotEmpty(t, snap.ConfigError)

	fixed := fixture()
	fixed.Schedule[0].StationID = "c"
	h.config.set(fixed, nil)
	snap = h.tickAt(at(8, 33))
	assert.Empty(t, snap.ConfigError)
	assert.Equal(t, "c", snap.Desired.ID)
	assert.Equal(t, "http://c/stream", h.player.url)
}

func TestReloadCommandReportsConfigError(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.start()

	h.config.set(nil, &domain.ConfigError{Issues: []string{"bad"}})
	ack, err := h.apply(t, Reload())
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))
	assert.False(t, ack.OK)
	assert.Equal(t, 4, ack.Status.Stations)
}

func TestPlayOverrideLastsUntilTransition(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.start()

	ack, err := h.apply(t, Play("c"))
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.Equal(t, schedule.SourceOverride, ack.Status.Source)
	require.NotNil(t, ack.Status.Override)
	assert.Equal(t, "http://c/stream", h.player.url)

	persisted, err := h.store.Override()
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "c", persisted.StationID)

	h.tickAt(at(8, 59))
	assert.Equal(t, "http://c/stream", h.player.url)

	snap := h.tickAt(at(9, 0))
	assert.Nil(t, snap.Override)
	assert.Equal(t, schedule.SourceDefault, snap.Source)
	assert.Equal(t, "http://a/stream", h.player.url)

	persisted, err = h.store.Override()
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestPlayUnknownStationIsRejected(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.start()

	ack, err := h.apply(t, Play("nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownStation))
	assert.False(t, ack.OK)
	assert.Equal(t, "b", ack.Status.Desired.ID)
}

func TestResumeDropsOverride(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.start()

	_, err := h.apply(t, Play("c"))
	require.NoError(t, err)

	ack, err := h.apply(t, Resume())
	require.NoError(t, err)
	assert.Nil(t, ack.Status.Override)
	assert.Equal(t, "http://b/stream", h.player.url)
}

func TestOverrideSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := state.Open(path)
	require.NoError(t, err)

	h := newHarnessWithStore(t, fixture(), at(8, 30), store)
	h.start()
	_, err = h.apply(t, Play("c"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = state.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h2 := newHarnessWithStore(t, fixture(), at(8, 40), store)
	h2.start()
	snap := h2.d.Snapshot()
	assert.Equal(t, schedule.SourceOverride, snap.Source)
	assert.Equal(t, "http://c/stream", h2.player.url)
}

func TestRestartCommandRecoversFromDegraded(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.player.setReachable(false)
	h.start()
	require.Equal(t, Degraded, h.d.Snapshot().State)

	_, err := h.apply(t, Restart())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnreachable))

	h.player.setReachable(true)
	ack, err := h.apply(t, Restart())
	require.NoError(t, err)
	assert.Equal(t, Steady, ack.Status.State)
	assert.True(t, ack.Status.BackendReachable)

	plays, _, _ := h.player.counts()
	assert.Equal(t, 1, plays)
}

func TestRepeatedPlayFailuresSurfaceAsHealth(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.player.playErr = domain.PlayFailure("add", errors.New("ACK [50@0] {add} No such directory"))
	h.start()

	snap := h.tickAt(at(8, 31))
	assert.Equal(t, HealthOK, snap.Health)
	snap = h.tickAt(at(8, 32))
	assert.Equal(t, Steady, snap.State, "play errors do not degrade")
	assert.Equal(t, HealthFailing, snap.Health)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.Contains(t, snap.LastError, "No such directory")

	h.player.mu.Lock()
	h.player.playErr = nil
	h.player.mu.Unlock()
	snap = h.tickAt(at(8, 33))
	assert.Equal(t, HealthOK, snap.Health)
	assert.Zero(t, snap.ConsecutiveFailures)
}

func TestUnreachableAttemptsSurfaceAsHealth(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.player.setReachable(false)
	h.start()

	snap := h.d.Snapshot()
	assert.Equal(t, 1, snap.ConsecutiveFailures)
	assert.Equal(t, HealthOK, snap.Health)

	// Ticks inside the backoff window are not attempts.
	snap = h.tickAt(at(8, 30).Add(time.Second))
	assert.Equal(t, 1, snap.ConsecutiveFailures)

	h.tickAt(at(8, 30).Add(2 * time.Second))
	snap = h.tickAt(at(8, 30).Add(6 * time.Second))
	assert.Equal(t, Degraded, snap.State)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.Equal(t, HealthFailing, snap.Health)

	h.player.setReachable(true)
	snap = h.tickAt(at(8, 31))
	assert.Equal(t, Steady, snap.State)
	assert.Equal(t, HealthOK, snap.Health)
	assert.Zero(t, snap.ConsecutiveFailures)
}

func TestRepeatedFailureIsRecordedOnce(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.player.playErr = domain.PlayFailure("add", errors.New("ACK [50@0] {add} No such directory"))
	h.start()

	for i := 1; i <= 20; i++ {
		h.tickAt(at(8, 30).Add(time.Duration(i) * 5 * time.Second))
	}
	events, err := h.store.RecentHistory(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "http://b/stream", events[0].URL)
	assert.Contains(t, events[0].Error, "No such directory")

	// A new target is a new failure.
	h.tickAt(at(9, 0))
	events, err = h.store.RecentHistory(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "http://a/stream", events[0].URL)

	// After a success the same failure is recorded again.
	h.player.mu.Lock()
	h.player.playErr = nil
	h.player.mu.Unlock()
	h.tickAt(at(9, 1))
	h.player.mu.Lock()
	h.player.playing = false
	h.player.playErr = domain.PlayFailure("add", errors.New("ACK [50@0] {add} No such directory"))
	h.player.mu.Unlock()
	h.tickAt(at(9, 2))

	events, err = h.store.RecentHistory(0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.NotEmpty(t, events[0].Error)
	assert.Empty(t, events[1].Error)
}

func TestStateText(t *testing.T) {
	for _, s := range []State{Initializing, Steady, Degraded, ShuttingDown} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s State
	err := s.UnmarshalText([]byte("sleeping"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sleeping")
}

func TestNewsBreakAndSkip(t *testing.T) {
	reg := fixture()
	reg.News = domain.NewsBreaks{
		Enabled: true,
		Rules: []domain.NewsRule{{
			StationID: "news",
			Days:      domain.AllDays,
			From:      tod(6, 0),
			To:        tod(22, 0),
			Interval:  60,
			Duration:  5,
		}},
	}
	h := newHarness(t, reg, at(10, 2))
	h.start()

	snap := h.d.Snapshot()
	assert.Equal(t, schedule.SourceNews, snap.Source)
	assert.Equal(t, "http://news/stream", h.player.url)

	ack, err := h.apply(t, SkipNews())
	require.NoError(t, err)
	assert.True(t, ack.Status.NewsSkipped)
	assert.Equal(t, schedule.SourceDefault, ack.Status.Source)
	assert.Equal(t, "http://a/stream", h.player.url)

	ack, err = h.apply(t, SkipNews())
	require.NoError(t, err)
	assert.False(t, ack.Status.NewsSkipped)
	assert.Equal(t, schedule.SourceNews, ack.Status.Source)

	snap = h.tickAt(at(10, 5))
	assert.Equal(t, schedule.SourceDefault, snap.Source, "break is over")
}

func TestVolumeCommand(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.start()

	ack, err := h.apply(t, Volume(75))
	require.NoError(t, err)
	assert.Equal(t, 75, ack.Status.Player.Volume)
	assert.Equal(t, 75, h.player.volume)
}

func TestPlayHistoryIsRecorded(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.start()
	h.tickAt(at(9, 0))

	events, err := h.store.RecentHistory(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].StationID)
	assert.Equal(t, "default", events[0].Source)
	assert.Equal(t, "b", events[1].StationID)
	assert.Equal(t, domain.ActionPlay, events[1].Action)
}

func TestRunServesCommandsAndStopsOnShutdown(t *testing.T) {
	h := newHarness(t, fixture(), at(8, 30))
	h.d.opts.TickInterval = time.Hour

	_, err := h.d.Submit(context.Background(), Status())
	assert.ErrorIs(t, err, domain.ErrNotRunning)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- h.d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.d.Snapshot().State == Steady
	}, 2*time.Second, 10*time.Millisecond)

	ack, err := h.d.Submit(context.Background(), Status())
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.NotEmpty(t, ack.ID)
	assert.Equal(t, "b", ack.Status.Desired.ID)

	_, err = h.d.Submit(context.Background(), Volume(300))
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, stops, _ := h.player.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, ShuttingDown, h.d.Snapshot().State)

	_, err = h.d.Submit(context.Background(), Status())
	assert.ErrorIs(t, err, domain.ErrNotRunning)
}
