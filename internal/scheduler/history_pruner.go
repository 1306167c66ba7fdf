package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/clock"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

const (
	// DefaultRetention is how long play events are kept.
	DefaultRetention = 30 * 24 * time.Hour // 30 days
)

// HistoryStore deletes play events older than a cutoff.
type HistoryStore interface {
	PruneHistory(cutoff time.Time) (int, error)
}

// HistoryPruner periodically drops old play events.
type HistoryPruner struct {
	store     HistoryStore
	clock     clock.Clock
	logger    logger.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewHistoryPruner creates a pruner. A zero retention uses DefaultRetention.
func NewHistoryPruner(
	store HistoryStore,
	clk clock.Clock,
	log logger.Logger,
	interval time.Duration,
	retention time.Duration,
) *HistoryPruner {
	if retention == 0 {
		retention = DefaultRetention
	}

	return &HistoryPruner{
		store:     store,
		clock:     clk,
		logger:    log,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start prunes once, then every interval until Stop or ctx is done.
func (hp *HistoryPruner) Start(ctx context.Context) {
	if _, err := hp.Prune(); err != nil {
		hp.logger.Warn("initial history pruning failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(hp.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := hp.Prune(); err != nil {
					hp.logger.Error("history pruning failed",
						logger.Error(err))
				}
			case <-hp.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the pruner.
func (hp *HistoryPruner) Stop() {
	hp.stopOnce.Do(func() { close(hp.stopCh) })
}

// Prune removes events older than the retention window.
func (hp *HistoryPruner) Prune() (int, error) {
	cutoff := hp.clock.Now().Add(-hp.retention)

	deleted, err := hp.store.PruneHistory(cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		hp.logger.Info("pruned play history",
			logger.Int("deleted", deleted),
			logger.Time("cutoff", cutoff))
	} else {
		hp.logger.Debug("no play history to prune")
	}
	return deleted, nil
}
