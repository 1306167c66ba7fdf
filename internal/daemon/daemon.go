// Package daemon runs the reconciliation loop that keeps the player in line
// with the schedule.
//
// A single goroutine owns every piece of mutable state: the registry, the
// override, the backoff and the failure counter. Control commands are
// queued to it and applied between ticks; readers get an immutable
// Snapshot.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/radio-scheduler/internal/clock"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
	"github.com/MrSnakeDoc/radio-scheduler/internal/schedule"
)

// Player is the backend the loop drives.
type Player interface {
	Status(ctx context.Context) (domain.PlayerState, error)
	Play(ctx context.Context, url string) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, volume int) error
	RestartConnection(ctx context.Context) error
}

// ConfigSource yields the station registry. Revision must change whenever
// Load could return something new.
type ConfigSource interface {
	Load() (*domain.Registry, error)
	Revision() uint64
}

// StateStore persists what must survive a daemon restart.
type StateStore interface {
	Override() (*schedule.Override, error)
	SetOverride(ov *schedule.Override) error
	NewsSkipped(t time.Time) (bool, error)
	SetNewsSkipped(t time.Time, skipped bool) error
	AppendHistory(ev *domain.PlayEvent) error
}

// Options tunes the loop.
type Options struct {
	TickInterval      time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffJitter     float64 // 0 disables randomization
	FailureThreshold  int     // consecutive failures before health turns "failing"
	StopOnShutdown    bool
	ShutdownTimeout   time.Duration
	HeartbeatInterval time.Duration
}

// DefaultOptions returns the stock loop settings.
func DefaultOptions() Options {
	return Options{
		TickInterval:      5 * time.Second,
		BackoffInitial:    2 * time.Second,
		BackoffMax:        60 * time.Second,
		BackoffJitter:     0.2,
		FailureThreshold:  5,
		StopOnShutdown:    true,
		ShutdownTimeout:   5 * time.Second,
		HeartbeatInterval: time.Minute,
	}
}

const commandQueueSize = 16

type Daemon struct {
	opts    Options
	config  ConfigSource
	player  Player
	store   StateStore
	clock   clock.Clock
	log     logger.Logger
	metrics *Metrics

	commands chan request
	wake     chan struct{}
	done     chan struct{}
	running  atomic.Bool
	snap     atomic.Pointer[Snapshot]

	// Owned by the loop goroutine.
	state         State
	reg           *domain.Registry
	revision      uint64
	configErr     error
	override      *schedule.Override
	newsSkipped   bool
	decision      schedule.Decision
	observed      domain.PlayerState
	backoff       *backoff.ExponentialBackOff
	nextAttempt   time.Time
	failures      int
	lastErr       error
	lastFailure   failureKey
	lastHeartbeat time.Time
	lastTick      time.Time
	startedAt     time.Time
}

// New builds a daemon. metrics may be nil.
func New(opts Options, cfg ConfigSource, p Player, store StateStore, clk clock.Clock, log logger.Logger, metrics *Metrics) *Daemon {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = def.BackoffInitial
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = def.FailureThreshold
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = def.ShutdownTimeout
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	if clk == nil {
		clk = clock.System{}
	}

	d := &Daemon{
		opts:     opts,
		config:   cfg,
		player:   p,
		store:    store,
		clock:    clk,
		log:      log,
		metrics:  metrics,
		commands: make(chan request, commandQueueSize),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		state:    Initializing,
		reg:      &domain.Registry{},
		backoff: &backoff.ExponentialBackOff{
			InitialInterval:     opts.BackoffInitial,
			RandomizationFactor: opts.BackoffJitter,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         opts.BackoffMax,
		},
	}
	d.backoff.Reset()
	d.snap.Store(&Snapshot{State: Initializing, Health: HealthOK})
	return d
}

// Wakeup returns a channel that triggers an early tick. Sends should be
// non-blocking; one pending wakeup is enough.
func (d *Daemon) Wakeup() chan<- struct{} { return d.wake }

// Snapshot returns the last published state.
func (d *Daemon) Snapshot() Snapshot { return *d.snap.Load() }

// Done is closed once Run has returned.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// Run drives the loop until ctx is cancelled, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer close(d.done)

	d.startedAt = d.clock.Now()
	d.initialize()
	d.tick(ctx)

	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case <-ticker.C:
			d.tick(ctx)
		case <-d.wake:
			d.tick(ctx)
		case req := <-d.commands:
			ack, err := d.handle(ctx, req)
			req.reply <- result{ack: ack, err: err}
		}
	}
}

// Submit queues cmd and waits for the loop's acknowledgement. Rejected
// commands return both an Ack (OK=false) and an error.
func (d *Daemon) Submit(ctx context.Context, cmd Command) (Ack, error) {
	if err := cmd.Validate(); err != nil {
		return Ack{Command: cmd.Kind, Error: err.Error(), Status: d.Snapshot()}, err
	}
	if !d.running.Load() {
		return Ack{}, domain.ErrNotRunning
	}

	req := request{
		id:    uuid.NewString(),
		cmd:   cmd,
		reply: make(chan result, 1),
	}

	select {
	case d.commands <- req:
	case <-d.done:
		return Ack{}, domain.ErrNotRunning
	case <-ctx.Done():
		return Ack{}, fmt.Errorf("queue %s: %w", cmd.Kind, ctx.Err())
	}

	select {
	case r := <-req.reply:
		return r.ack, r.err
	case <-d.done:
		return Ack{}, domain.ErrNotRunning
	case <-ctx.Done():
		return Ack{}, fmt.Errorf("await %s: %w", cmd.Kind, ctx.Err())
	}
}

// initialize loads the registry and the persisted override.
func (d *Daemon) initialize() {
	if err := d.reload(true); err != nil {
		d.log.Warn("starting with an empty station list", logger.Error(err))
	}

	ov, err := d.store.Override()
	if err != nil {
		d.log.Warn("failed to read persisted override", logger.Error(err))
	}
	if ov != nil {
		d.override = ov
		d.log.Info("restored manual override",
			logger.String("station", ov.StationID),
			logger.Time("set_at", ov.SetAt))
	}
}

func (d *Daemon) setState(s State) {
	if d.state == s {
		return
	}
	d.log.Info("state change",
		logger.String("from", d.state.String()),
		logger.String("to", s.String()))
	d.state = s
}

func (d *Daemon) health() string {
	if d.failures >= d.opts.FailureThreshold {
		return HealthFailing
	}
	return HealthOK
}

// publish swaps in a fresh snapshot of the loop state.
func (d *Daemon) publish() {
	snap := &Snapshot{
		State:               d.state,
		Health:              d.health(),
		Desired:             stationRef(d.decision.Station),
		Source:              d.decision.Source,
		BackendReachable:    d.observed.BackendReachable,
		Player:              d.observed,
		NewsSkipped:         d.newsSkipped,
		ConsecutiveFailures: d.failures,
		Stations:            len(d.reg.Stations),
		LastTick:            d.lastTick,
		StartedAt:           d.startedAt,
	}
	if d.override != nil {
		ov := *d.override
		snap.Override = &ov
	}
	if d.lastErr != nil {
		snap.LastError = d.lastErr.Error()
	}
	if d.configErr != nil {
		snap.ConfigError = d.configErr.Error()
	}
	if d.state == Degraded {
		next := d.nextAttempt
		snap.NextAttempt = &next
	}
	if snap.Source == "" {
		snap.Source = schedule.SourceNone
	}
	d.snap.Store(snap)
	d.metrics.RecordState(d.state, d.observed.BackendReachable, d.failures)
}

// shutdown stops the player (best effort) within the grace period.
func (d *Daemon) shutdown() {
	d.setState(ShuttingDown)
	d.publish()

	if d.opts.StopOnShutdown && d.observed.BackendReachable {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.ShutdownTimeout)
		defer cancel()
		err := d.player.Stop(ctx)
		d.metrics.RecordPlayerCall("stop", err)
		d.record(domain.ActionStop, d.observed.CurrentURL, "", "shutdown", err)
		if err != nil {
			d.log.Warn("failed to stop playback on shutdown", logger.Error(err))
		} else {
			d.log.Info("playback stopped")
		}
	}
}

// failureKey identifies a failed player command for history deduplication.
type failureKey struct {
	action domain.PlayAction
	url    string
	err    string
}

// record appends a play event to the history. A failure identical to the
// previous one is not recorded again; any success resets that.
// Storage errors are logged only.
func (d *Daemon) record(action domain.PlayAction, url, stationID, source string, cause error) {
	ev := &domain.PlayEvent{
		At:        d.clock.Now(),
		Action:    action,
		StationID: stationID,
		URL:       url,
		Source:    source,
	}
	if cause != nil {
		ev.Error = cause.Error()
		key := failureKey{action: action, url: url, err: ev.Error}
		if key == d.lastFailure {
			return
		}
		d.lastFailure = key
	} else {
		d.lastFailure = failureKey{}
	}
	if err := d.store.AppendHistory(ev); err != nil {
		d.log.Warn("failed to record play history", logger.Error(err))
	}
}
