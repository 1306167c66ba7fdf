package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// finalSyncTimeout bounds the last push made while stopping.
const finalSyncTimeout = 2 * time.Second

// SnapshotSource exposes the daemon status.
type SnapshotSource interface {
	Snapshot() daemon.Snapshot
}

// HistorySource lists recent play events, newest first.
type HistorySource interface {
	RecentHistory(limit int) ([]domain.PlayEvent, error)
}

// Publisher receives mirrored state.
type Publisher interface {
	PublishStatus(ctx context.Context, snap daemon.Snapshot) error
	PushEvents(ctx context.Context, events []domain.PlayEvent) error
	History(ctx context.Context, limit int) ([]domain.PlayEvent, error)
}

// StatusMirror periodically copies the daemon snapshot and new play events
// to a Publisher. Failures are logged and never reach the daemon.
type StatusMirror struct {
	daemon    SnapshotSource
	history   HistorySource
	publisher Publisher
	logger    logger.Logger
	interval  time.Duration
	batch     int

	mu      sync.Mutex
	lastID  string
	seeded  bool
	stopCh  chan struct{}
	stopped chan struct{}
	once    sync.Once
	started atomic.Bool
}

// NewStatusMirror creates a mirror job. batch caps how many events are
// read from history per sync.
func NewStatusMirror(
	d SnapshotSource,
	history HistorySource,
	publisher Publisher,
	log logger.Logger,
	interval time.Duration,
	batch int,
) *StatusMirror {
	if batch <= 0 {
		batch = 100
	}
	return &StatusMirror{
		daemon:    d,
		history:   history,
		publisher: publisher,
		logger:    log,
		interval:  interval,
		batch:     batch,
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start syncs once, then every interval. When stopped it makes a final
// sync so the mirror shows the shutdown.
func (sm *StatusMirror) Start(ctx context.Context) {
	sm.started.Store(true)
	if err := sm.Sync(ctx); err != nil {
		sm.logger.Warn("initial status mirror failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(sm.interval)
	go func() {
		defer close(sm.stopped)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sm.Sync(ctx); err != nil {
					sm.logger.Warn("status mirror failed",
						logger.Error(err))
				}
			case <-sm.stopCh:
				sm.finalSync()
				return
			case <-ctx.Done():
				sm.finalSync()
				return
			}
		}
	}()
}

// Stop stops the job and waits for the final sync.
func (sm *StatusMirror) Stop() {
	sm.once.Do(func() { close(sm.stopCh) })
	if sm.started.Load() {
		<-sm.stopped
	}
}

func (sm *StatusMirror) finalSync() {
	ctx, cancel := context.WithTimeout(context.Background(), finalSyncTimeout)
	defer cancel()
	if err := sm.Sync(ctx); err != nil {
		sm.logger.Debug("final status mirror failed", logger.Error(err))
	}
}

// Sync publishes the current snapshot and every event not mirrored yet.
func (sm *StatusMirror) Sync(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.publisher.PublishStatus(ctx, sm.daemon.Snapshot()); err != nil {
		return err
	}

	if !sm.seeded {
		// Resume after the newest event already mirrored by a previous run.
		mirrored, err := sm.publisher.History(ctx, 1)
		if err != nil {
			return fmt.Errorf("failed to read mirrored history: %w", err)
		}
		if len(mirrored) > 0 {
			sm.lastID = mirrored[0].ID
		}
		sm.seeded = true
	}

	recent, err := sm.history.RecentHistory(sm.batch)
	if err != nil {
		return fmt.Errorf("failed to read play history: %w", err)
	}

	fresh := newEvents(recent, sm.lastID)
	if len(fresh) == 0 {
		return nil
	}
	if err := sm.publisher.PushEvents(ctx, fresh); err != nil {
		return err
	}
	sm.lastID = fresh[len(fresh)-1].ID

	sm.logger.Debug("mirrored play events", logger.Int("count", len(fresh)))
	return nil
}

// newEvents returns the events of recent (newest first) that come after
// lastID, oldest first.
func newEvents(recent []domain.PlayEvent, lastID string) []domain.PlayEvent {
	var out []domain.PlayEvent
	for _, ev := range recent {
		if lastID != "" && ev.ID == lastID {
			break
		}
		out = append(out, ev)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
